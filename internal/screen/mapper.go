// File: internal/screen/mapper.go
package screen

// Geometry describes one physical display: its size and its position inside
// the combined virtual desktop.
type Geometry struct {
	Width   int
	Height  int
	OffsetX int
	OffsetY int
}

// Mapper converts between the logical coordinate space the model reasons in
// and physical screen coordinates. It never fails; out-of-range input is
// clamped to the nearest legal value.
type Mapper struct {
	real     Geometry
	logicalW int
	logicalH int
	enabled  bool
}

// NewMapper builds a mapper for one physical display. When enabled is false
// the mapper only applies the monitor offset on the way to the screen.
func NewMapper(real Geometry, logicalW, logicalH int, enabled bool) *Mapper {
	return &Mapper{real: real, logicalW: logicalW, logicalH: logicalH, enabled: enabled}
}

// Real returns the physical display geometry the mapper was built with.
func (m *Mapper) Real() Geometry { return m.real }

// Logical returns the logical width and height.
func (m *Mapper) Logical() (int, int) { return m.logicalW, m.logicalH }

// Enabled reports whether linear scaling is active.
func (m *Mapper) Enabled() bool { return m.enabled }

// ToScreen maps logical coordinates onto the physical display. The result is
// always inside [offset, offset+dimension-1] on both axes.
func (m *Mapper) ToScreen(x, y int) (int, int) {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}

	if !m.enabled {
		fx := clamp(x+m.real.OffsetX, m.real.OffsetX, m.real.OffsetX+m.real.Width-1)
		fy := clamp(y+m.real.OffsetY, m.real.OffsetY, m.real.OffsetY+m.real.Height-1)
		return fx, fy
	}

	// Independent per-axis ratios; truncate after applying the offset.
	fx := int(float64(x)/float64(m.logicalW)*float64(m.real.Width)) + m.real.OffsetX
	fy := int(float64(y)/float64(m.logicalH)*float64(m.real.Height)) + m.real.OffsetY
	fx = clamp(fx, m.real.OffsetX, m.real.OffsetX+m.real.Width-1)
	fy = clamp(fy, m.real.OffsetY, m.real.OffsetY+m.real.Height-1)
	return fx, fy
}

// ToLogical maps physical display coordinates back into the logical space.
// With scaling disabled it is the identity (after the negative clamp).
func (m *Mapper) ToLogical(x, y int) (int, int) {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}

	if !m.enabled {
		return x, y
	}

	rx := clamp(x-m.real.OffsetX, 0, m.real.Width)
	ry := clamp(y-m.real.OffsetY, 0, m.real.Height)
	lx := int(float64(rx) / float64(m.real.Width) * float64(m.logicalW))
	ly := int(float64(ry) / float64(m.real.Height) * float64(m.logicalH))
	return lx, ly
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
