package tensor

// View addresses an f32 buffer as [sample][channel][row][col] with an
// innermost stride of one and explicit element strides for the outer three
// dimensions.
type View struct {
	Data []float32
	// Cols, Rows, Channels, Samples are ne0..ne3.
	Cols, Rows, Channels, Samples int
	// StrideRow, StrideChannel, StrideSample are in elements.
	StrideRow, StrideChannel, StrideSample int
}

// PackedView describes data laid out densely with the given shape.
func PackedView(data []float32, cols, rows, channels, samples int) View {
	return View{
		Data:          data,
		Cols:          cols,
		Rows:          rows,
		Channels:      channels,
		Samples:       samples,
		StrideRow:     cols,
		StrideChannel: cols * rows,
		StrideSample:  cols * rows * channels,
	}
}

// RowOffset is the index of column 0 of (sample, channel, row).
func (v View) RowOffset(sample, channel, row int) int {
	return sample*v.StrideSample + channel*v.StrideChannel + row*v.StrideRow
}

// ElementAt returns the element at (sample, channel, row, col).
func (v View) ElementAt(sample, channel, row, col int) float32 {
	return v.Data[v.RowOffset(sample, channel, row)+col]
}

// Row returns the Cols elements of (sample, channel, row).
func (v View) Row(sample, channel, row int) []float32 {
	off := v.RowOffset(sample, channel, row)
	return v.Data[off : off+v.Cols]
}

// NRows is Rows*Channels*Samples.
func (v View) NRows() int {
	return v.Rows * v.Channels * v.Samples
}

// SplitRow maps a flat row index to (sample, channel, row).
func (v View) SplitRow(i int) (sample, channel, row int) {
	row = i % v.Rows
	i /= v.Rows
	return i / v.Channels, i % v.Channels, row
}
