// Package calibration aligns a rotating sample stage with the imaging
// detector using a reference sphere. It contains:
//
//   - Mode: the one-shot calibration procedures (resolution, focus, center,
//     roll, pitch) and the standalone centroid check
//   - Config: the read-only inputs of a run
//   - Result: the values a run measures, persisted between runs
//   - Engine: drives the stage and the detector through hardware.Channels
//
// The closed form geometry lives in geometry.go and the focus search in
// focus.go; both are pure and can be used without hardware.
package calibration
