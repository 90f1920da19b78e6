package tree

// Merge combines the static tree with the dynamic one into a new tree.
//
// Levels missing from static are taken from dynamic. When both sides define the same subject,
// the static entries come first, followed by the dynamic ones.
// A dynamic entry whose ID is already in the static subject replaces it in place.
// Every subject of the result is stable-sorted by order, whichever side it came from.
// Neither input is modified.
func Merge(static, dynamic Tree) Tree {
	merged := static.Clone()

	for dk, dDept := range dynamic {
		mDept, ok := merged[dk]
		if !ok {
			merged[dk] = dDept.clone()
			continue
		}
		for yk, dYear := range dDept {
			mYear, ok := mDept[yk]
			if !ok {
				mDept[yk] = dYear.clone()
				continue
			}
			for sk, dSection := range dYear {
				mSection, ok := mYear[sk]
				if !ok {
					mYear[sk] = dSection.clone()
					continue
				}
				for subk, dEntries := range dSection {
					mEntries, ok := mSection[subk]
					if !ok {
						mSection[subk] = cloneEntries(dEntries)
						continue
					}
					mSection[subk] = mergeEntries(mEntries, dEntries)
				}
			}
		}
	}
	merged.SortAll()
	return merged
}

func mergeEntries(static, dynamic []Entry) []Entry {
	out := make([]Entry, 0, len(static)+len(dynamic))
	out = append(out, static...)

	index := make(map[string]int, len(out))
	for i, e := range out {
		index[e.ID] = i
	}
	for _, e := range dynamic {
		if i, dup := index[e.ID]; dup && e.ID != "" {
			out[i] = e
			continue
		}
		index[e.ID] = len(out)
		out = append(out, e)
	}
	return out
}

// Clone returns a deep copy of the tree structure. Entries are copied by value.
func (t Tree) Clone() Tree {
	out := make(Tree, len(t))
	for k, d := range t {
		out[k] = d.clone()
	}
	return out
}

func (d Department) clone() Department {
	out := make(Department, len(d))
	for k, y := range d {
		out[k] = y.clone()
	}
	return out
}

func (y Year) clone() Year {
	out := make(Year, len(y))
	for k, s := range y {
		out[k] = s.clone()
	}
	return out
}

func (s Section) clone() Section {
	out := make(Section, len(s))
	for k, entries := range s {
		out[k] = cloneEntries(entries)
	}
	return out
}

func cloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
