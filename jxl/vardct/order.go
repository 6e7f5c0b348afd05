package vardct

import "sync"

// orderSizes lists the coefficient space of each order table, long
// dimension first. Two tables share the 8x8 space because the 8x8
// specials keep their own permutations.
var orderSizes = [13][2]int{
	{8, 8}, {8, 8}, {16, 16}, {32, 32},
	{16, 8}, {32, 8}, {32, 16},
	{64, 64}, {64, 32},
	{128, 128}, {128, 64},
	{256, 256}, {256, 128},
}

var (
	naturalOrders    [13][][2]uint8
	naturalOrderOnce sync.Once
)

// naturalOrder returns the default scan for one order id: the LLF
// positions in raster order, then a zig-zag over the remaining
// coefficients. Coordinates are matrix positions, long dimension first.
func naturalOrder(orderID int) [][2]uint8 {
	naturalOrderOnce.Do(func() {
		for i := range naturalOrders {
			naturalOrders[i] = computeNaturalOrder(orderSizes[i][0], orderSizes[i][1])
		}
	})
	return naturalOrders[orderID]
}

// computeNaturalOrder walks a square zig-zag over the long dimension and
// keeps every yScale-th row, mapping the kept rows onto the short
// dimension. Rectangular transforms scan like their square-ified
// counterparts this way.
func computeNaturalOrder(long, short int) [][2]uint8 {
	yScale := long / short
	lbw := long / 8
	lbh := short / 8

	ret := make([][2]uint8, 0, long*short)
	for idx := 0; idx < lbw*lbh; idx++ {
		ret = append(ret, [2]uint8{uint8(idx % lbw), uint8(idx / lbw)})
	}

	dist, order := 0, 0
	for len(ret) < long*short {
		var x, y int
		if dist%2 == 0 {
			x, y = order, dist-order
		} else {
			x, y = dist-order, order
		}

		order++
		if order > dist || order >= long {
			dist++
			if dist < long {
				order = 0
			} else {
				order = dist - long + 1
			}
		}

		if y%yScale != 0 {
			continue
		}
		if x < lbw && y/yScale < lbh {
			continue
		}
		ret = append(ret, [2]uint8{uint8(x), uint8(y / yScale)})
	}
	return ret
}
