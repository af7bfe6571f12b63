package calibration

import (
	"math"

	"github.com/beamtools/stagecal/pkg/frame"
	"github.com/beamtools/stagecal/pkg/registration"
)

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }

// PixelSize returns the detector pixel size in µm/pixel, given a lateral
// stage move of distance mm that displaced the image by d.
func PixelSize(distance float64, d registration.Displacement) (float64, error) {
	n := d.Norm()
	if n == 0 {
		return 0, ErrNoDisplacement
	}
	return math.Abs(distance) / n * 1000, nil
}

// CenterOffset triangulates the position of the sphere relative to the
// rotation axis from the column shifts between three frames taken at 0, a
// and 2a deg. x is across the beam, y along it, both in pixels at 0 deg.
func CenterOffset(shift0, shift1, angle float64) (x, y float64) {
	a := deg2rad(angle)
	s2 := math.Pow(math.Sin(a/2), 2)

	x = -(shift0 + shift1 - 2*shift0*math.Cos(a)) / (4 * s2)

	q := math.Sqrt(math.Abs((shift0*shift0 + shift1*shift1 - 2*shift0*shift1*math.Cos(a)) * s2))
	if q == 0 {
		// no motion at all: the sphere sits on the axis
		return x, 0
	}
	r := q / (2 * s2 * math.Sin(a))
	cosG := ((-shift0 - shift1 + 2*shift0*math.Cos(a)) * math.Sin(a)) / (2 * q)
	g := math.Acos(math.Max(-1, math.Min(1, cosG)))
	y = r * math.Sin(g) * sign(shift0)
	return x, y
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// RollError returns the tilt of the line joining the sphere centroids taken
// half a turn apart, in degrees. Swapping the centroids negates the result.
// The column term is taken as a magnitude, so the sign follows the row
// change alone: positive when the 180 deg centroid sits lower in the frame,
// whichever side of the axis the sphere starts on.
func RollError(c0, c180 frame.Point) float64 {
	return rad2deg(math.Atan2(c180.Row-c0.Row, math.Abs(c180.Col-c0.Col)))
}

// PredictedRollShift extrapolates the lateral shift measured for a test roll
// change of test deg to the shift caused by a roll change of roll deg.
func PredictedRollShift(measured, roll, test float64) float64 {
	r, t := deg2rad(roll), deg2rad(test)
	return measured * math.Sin(r) * (math.Cos(r)/math.Tan(t) + math.Sin(r))
}

// PitchError returns the pitch error in degrees from the sphere centroids
// taken half a turn apart with the sphere off axis along the beam. pixelSize
// is in µm/pixel.
func PitchError(c0, c180 frame.Point, pixelSize float64) float64 {
	return rad2deg(math.Atan((c180.Row - c0.Row) * pixelSize / 1000 / 2.0))
}
