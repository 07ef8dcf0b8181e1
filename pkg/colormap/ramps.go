package colormap

import "image/color"

// Viridis colormap (matplotlib viridis)
var Viridis = LinearRamp{
	colors: []color.RGBA{
		{68, 1, 84, 255},
		{72, 35, 116, 255},
		{64, 67, 135, 255},
		{52, 94, 141, 255},
		{41, 120, 142, 255},
		{32, 144, 140, 255},
		{34, 167, 132, 255},
		{68, 190, 112, 255},
		{121, 209, 81, 255},
		{189, 222, 38, 255},
		{253, 231, 37, 255},
	},
}

// Plasma colormap
var Plasma = LinearRamp{
	colors: []color.RGBA{
		{13, 8, 135, 255},
		{75, 3, 161, 255},
		{125, 3, 168, 255},
		{168, 34, 150, 255},
		{203, 70, 121, 255},
		{229, 107, 93, 255},
		{248, 148, 65, 255},
		{253, 195, 40, 255},
		{240, 249, 33, 255},
	},
}

// Inferno colormap
var Inferno = LinearRamp{
	colors: []color.RGBA{
		{0, 0, 4, 255},
		{40, 11, 84, 255},
		{101, 21, 110, 255},
		{159, 42, 99, 255},
		{212, 72, 66, 255},
		{245, 125, 21, 255},
		{250, 193, 39, 255},
		{252, 255, 164, 255},
	},
}

// Magma colormap
var Magma = LinearRamp{
	colors: []color.RGBA{
		{0, 0, 4, 255},
		{28, 16, 68, 255},
		{79, 18, 123, 255},
		{129, 37, 129, 255},
		{181, 54, 122, 255},
		{229, 80, 100, 255},
		{251, 135, 97, 255},
		{254, 194, 135, 255},
		{252, 253, 191, 255},
	},
}

// Categorical colormap with 20 distinct colors
var Categorical = CategoricalRamp{
	colors: []color.RGBA{
		{31, 119, 180, 255},  // Blue
		{255, 127, 14, 255},  // Orange
		{44, 160, 44, 255},   // Green
		{214, 39, 40, 255},   // Red
		{148, 103, 189, 255}, // Purple
		{140, 86, 75, 255},   // Brown
		{227, 119, 194, 255}, // Pink
		{127, 127, 127, 255}, // Gray
		{188, 189, 34, 255},  // Olive
		{23, 190, 207, 255},  // Cyan
		{174, 199, 232, 255}, // Light blue
		{255, 187, 120, 255}, // Light orange
		{152, 223, 138, 255}, // Light green
		{255, 152, 150, 255}, // Light red
		{197, 176, 213, 255}, // Light purple
		{196, 156, 148, 255}, // Light brown
		{247, 182, 210, 255}, // Light pink
		{199, 199, 199, 255}, // Light gray
		{219, 219, 141, 255}, // Light olive
		{158, 218, 229, 255}, // Light cyan
	},
}

// Hot colormap (matplotlib hot)
var Hot = hex(
	0x0b0000ff, 0x4d0000ff, 0x900000ff, 0xd20000ff, 0xff1700ff, 0xff5a00ff,
	0xff9d00ff, 0xffe000ff, 0xffff46ff, 0xffffa3ff, 0xffffffff,
)

// CoolWarm colormap (matplotlib coolwarm)
var CoolWarm = hex(
	0x3b4cc0ff, 0x5977e3ff, 0x7b9ff9ff, 0x9ebeffff, 0xc0d4f5ff, 0xdddcdcff,
	0xf2cbb7ff, 0xf7ac8eff, 0xee8468ff, 0xd65244ff, 0xb40426ff,
)

var BlueToOrange = hex(
	0x2586abff, 0x4ea3c8ff, 0x7fb8d4ff, 0xadd8eaff, 0xc8e1e7ff, 0xedeceaff,
	0xf0e7bbff, 0xf5cf7dff, 0xf9b737ff, 0xe68f2dff, 0xd76b27ff,
)

var LightYellowToOrange = hex(
	0x118c8cff, 0x429d91ff, 0x61af96ff, 0x75c59bff, 0xa2cf9fff, 0xc5daa3ff,
	0xe6e5a7ff, 0xe3d28fff, 0xe0c078ff, 0xddad62ff, 0xd29953ff, 0xca8746ff,
	0xc2773bff,
)

var BlueToRed = hex(
	0x2791c3ff, 0x5da1caff, 0x83b2d1ff, 0xa8c5d8ff, 0xccdbe0ff, 0xe9d3c1ff,
	0xdcad92ff, 0xd08b6cff, 0xc66e4bff, 0xbd4e2eff,
)

var GreenToRedOrange = hex(
	0x569543ff, 0x9ebd4dff, 0xbbca7aff, 0xd9e2b2ff, 0xe4e7c4ff, 0xe6d6beff,
	0xe3c193ff, 0xdfac6cff, 0xdb9842ff, 0xb96230ff,
)

var LightToDarkSunset = hex(
	0xffffffff, 0xfbedd1ff, 0xf7e0a9ff, 0xefd299ff, 0xe8c58bff, 0xe0b97eff,
	0xf2ab5eff, 0xf58c44ff, 0xf26e2cff, 0xe44c1fff, 0xd4311bff,
)

var LightToDarkGreen = hex(
	0xe8eddbff, 0xdce8d4ff, 0xbedbadff, 0xa0cf88ff, 0x81c561ff, 0x4baf48ff,
	0x1ca049ff, 0x3a6d35ff,
)

var HeatmapYellowToRed = hex(
	0xf7da22ff, 0xecbe1dff, 0xe77124ff, 0xd54927ff, 0xcf3a27ff, 0xa33936ff,
	0x7f182aff, 0x68101aff,
)

var HeatmapBlueToYellowToRedSpectrum = hex(
	0x2a2e7fff, 0x3d5aa9ff, 0x4698d3ff, 0x39c6f0ff, 0x76c9b3ff, 0xa8d050ff,
	0xf6eb14ff, 0xfcb017ff, 0xf16022ff, 0xee2c24ff, 0x7d1416ff,
)

var HeatmapDarkRedToYellowWhite = hex(
	0x68101aff, 0x7f182aff, 0xa33936ff, 0xcf3a27ff, 0xd54927ff, 0xe77124ff,
	0xecbe1dff, 0xf7da22ff, 0xf6edb1ff, 0xffffffff,
)

var HeatmapLightPurpleToDarkPurpleToWhite = hex(
	0xa7afdeff, 0x878cc1ff, 0x6a6ca5ff, 0x4e4c89ff, 0x33306eff, 0x191455ff,
	0x3f3a7bff, 0x8b86b8ff, 0xd4d1ebff, 0xffffffff,
)

var ClassificationBoldLandUse = CategoricalRamp{colors: hex(
	0xb29cc3ff, 0x4f8ebbff, 0x8aafc6ff, 0xb4cbd8ff, 0xc4b659ff, 0x6eae47ff,
	0x175f36ff, 0xe97d18ff, 0xe2c36eff, 0x9b6e3aff, 0x6f6f6fff, 0x000000ff,
).colors}

var ClassificationMutedTerrain = CategoricalRamp{colors: hex(
	0xcee1e8ff, 0x7cbcb5ff, 0x82b36dff, 0x94c279ff, 0xd1dda1ff, 0xf4efc5ff,
	0xeec77fff, 0xd3a67dff, 0xbd9d83ff, 0xaea299ff, 0x999999ff,
).colors}
