/*
Package layout positions panels inside the host window.

Compute is a pure function from (viewport, geometry, enabled and disabled
panel ids, offset) to a Plan. Engine owns the one piece of mutable state,
the horizontal scroll offset, and applies plans to a WindowAdapter.

Visible panels share the available width evenly. Enabled panels scrolled
out of view are parked at (-9999, -9999) with their real size so their
pages keep rendering; disabled panels are parked with zero size.

	+---------------- toolbar ----------------+---------+
	| panel 0 | panel 1 | panel 2 | (panel 3) | sidebar |
	+--------------- scrollbar ---------------+---------+
*/
package layout
