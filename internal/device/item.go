package device

// Float2 is a pair of float32 values reduced component-wise.
type Float2 struct {
	X, Y float32
}

// Add returns the component-wise sum.
func (f Float2) Add(o Float2) Float2 {
	return Float2{f.X + o.X, f.Y + o.Y}
}

// subgroup is the exchange state shared by WarpSize consecutive lanes.
type subgroup struct {
	bar   *barrier
	slots [WarpSize]float32
	pairs [WarpSize]Float2
}

// workGroup is the state shared by every lane of one work-group.
type workGroup struct {
	id        Range3
	groups    Range3
	local     Range3
	bar       *barrier
	subgroups []*subgroup
	mem       []float32
}

func newWorkGroup(id, groups, local Range3, localWords int) *workGroup {
	lanes := local.Size()
	wg := &workGroup{
		id:        id,
		groups:    groups,
		local:     local,
		bar:       newBarrier(lanes),
		subgroups: make([]*subgroup, lanes/WarpSize),
	}
	for i := range wg.subgroups {
		wg.subgroups[i] = &subgroup{bar: newBarrier(WarpSize)}
	}
	if localWords > 0 {
		wg.mem = make([]float32, localWords)
	}
	return wg
}

func (wg *workGroup) abort(err error) {
	wg.bar.abort(err)
	for _, sg := range wg.subgroups {
		sg.bar.abort(err)
	}
}

// Item is the per-lane view of a running kernel.
type Item struct {
	wg    *workGroup
	local Range3
	lane  int
}

// GroupID returns the work-group index in dimension dim.
func (it *Item) GroupID(dim int) int { return it.wg.id[dim] }

// GroupRange returns the number of work-groups in dimension dim.
func (it *Item) GroupRange(dim int) int { return it.wg.groups[dim] }

// LocalID returns the lane index within the work-group in dimension dim.
func (it *Item) LocalID(dim int) int { return it.local[dim] }

// LocalRange returns the work-group extent in dimension dim.
func (it *Item) LocalRange(dim int) int { return it.wg.local[dim] }

// LocalLinearID is the flattened lane index within the work-group.
func (it *Item) LocalLinearID() int { return it.lane }

// SubgroupID is the index of the lane's subgroup within the work-group.
func (it *Item) SubgroupID() int { return it.lane / WarpSize }

// SubgroupLocalID is the lane index within its subgroup.
func (it *Item) SubgroupLocalID() int { return it.lane % WarpSize }

// Local returns the work-group scratch memory. It is nil when the launch
// requested none.
func (it *Item) Local() []float32 { return it.wg.mem }

// Barrier blocks until every lane of the work-group reaches it. All lanes must
// execute the same sequence of barriers.
func (it *Item) Barrier() {
	it.wg.bar.wait()
}

// ShuffleXor returns v as held by the lane whose subgroup id is this lane's
// xor mask. Every lane of the subgroup must call it.
func (it *Item) ShuffleXor(v float32, mask int) float32 {
	sg := it.wg.subgroups[it.SubgroupID()]
	l := it.SubgroupLocalID()
	sg.slots[l] = v
	sg.bar.wait()
	r := sg.slots[(l^mask)%WarpSize]
	sg.bar.wait()
	return r
}

// ShuffleXor2 is ShuffleXor for a value pair.
func (it *Item) ShuffleXor2(v Float2, mask int) Float2 {
	sg := it.wg.subgroups[it.SubgroupID()]
	l := it.SubgroupLocalID()
	sg.pairs[l] = v
	sg.bar.wait()
	r := sg.pairs[(l^mask)%WarpSize]
	sg.bar.wait()
	return r
}
