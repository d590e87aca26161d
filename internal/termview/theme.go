package termview

import (
	"sort"
	"strconv"
)

// DefaultTheme is used when no or an unknown theme is configured.
const DefaultTheme = "outrun"

type rgb struct {
	r int
	g int
	b int
}

// Theme holds the colors of the terminal projection.
type Theme struct {
	Name       string
	BarBG      rgb
	BarFG      rgb
	BarAccent  rgb
	GutterFG   rgb
	SelectedFG rgb
	WaitingFG  rgb
	SpinnerFG  rgb
	CompleteFG rgb
	SelfBG     rgb
	SelfFG     rgb
	RelatedBG  rgb
	RelatedFG  rgb
	MathFG     rgb
	ErrorFG    rgb
}

const (
	ansiReset     = "\x1b[0m"
	ansiBold      = "\x1b[1m"
	ansiDim       = "\x1b[2m"
	ansiUnderline = "\x1b[4m"
)

var themes = map[string]Theme{
	"outrun": {
		Name:       "outrun",
		BarBG:      rgb{r: 32, g: 8, b: 56},
		BarFG:      rgb{r: 240, g: 241, b: 255},
		BarAccent:  rgb{r: 0, g: 229, b: 255},
		GutterFG:   rgb{r: 154, g: 163, b: 178},
		SelectedFG: rgb{r: 255, g: 91, b: 189},
		WaitingFG:  rgb{r: 154, g: 163, b: 178},
		SpinnerFG:  rgb{r: 110, g: 136, b: 255},
		CompleteFG: rgb{r: 112, g: 214, b: 255},
		SelfBG:     rgb{r: 173, g: 216, b: 230},
		SelfFG:     rgb{r: 10, g: 13, b: 23},
		RelatedBG:  rgb{r: 255, g: 255, b: 0},
		RelatedFG:  rgb{r: 10, g: 13, b: 23},
		MathFG:     rgb{r: 112, g: 214, b: 255},
		ErrorFG:    rgb{r: 255, g: 107, b: 107},
	},
	"gruvbox": {
		Name:       "gruvbox",
		BarBG:      rgb{r: 60, g: 56, b: 54},
		BarFG:      rgb{r: 235, g: 219, b: 178},
		BarAccent:  rgb{r: 250, g: 189, b: 47},
		GutterFG:   rgb{r: 146, g: 131, b: 116},
		SelectedFG: rgb{r: 214, g: 93, b: 14},
		WaitingFG:  rgb{r: 146, g: 131, b: 116},
		SpinnerFG:  rgb{r: 131, g: 165, b: 152},
		CompleteFG: rgb{r: 184, g: 187, b: 38},
		SelfBG:     rgb{r: 131, g: 165, b: 152},
		SelfFG:     rgb{r: 40, g: 40, b: 40},
		RelatedBG:  rgb{r: 250, g: 189, b: 47},
		RelatedFG:  rgb{r: 40, g: 40, b: 40},
		MathFG:     rgb{r: 250, g: 189, b: 47},
		ErrorFG:    rgb{r: 251, g: 73, b: 52},
	},
	"tokyo-midnight": {
		Name:       "tokyo-midnight",
		BarBG:      rgb{r: 26, g: 27, b: 38},
		BarFG:      rgb{r: 192, g: 202, b: 245},
		BarAccent:  rgb{r: 122, g: 162, b: 247},
		GutterFG:   rgb{r: 127, g: 133, b: 163},
		SelectedFG: rgb{r: 187, g: 154, b: 247},
		WaitingFG:  rgb{r: 127, g: 133, b: 163},
		SpinnerFG:  rgb{r: 122, g: 162, b: 247},
		CompleteFG: rgb{r: 158, g: 206, b: 106},
		SelfBG:     rgb{r: 125, g: 207, b: 255},
		SelfFG:     rgb{r: 26, g: 27, b: 38},
		RelatedBG:  rgb{r: 224, g: 175, b: 104},
		RelatedFG:  rgb{r: 26, g: 27, b: 38},
		MathFG:     rgb{r: 158, g: 206, b: 106},
		ErrorFG:    rgb{r: 247, g: 118, b: 142},
	},
}

// ThemeFor returns the named theme, falling back to DefaultTheme.
func ThemeFor(name string) Theme {
	if theme, ok := themes[name]; ok {
		return theme
	}
	return themes[DefaultTheme]
}

// ThemeNames lists the known theme names.
func ThemeNames() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsTheme reports whether name is a known theme.
func IsTheme(name string) bool {
	_, ok := themes[name]
	return ok
}

func ansiFgRGB(c rgb) string {
	return "\x1b[38;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}

func ansiBgRGB(c rgb) string {
	return "\x1b[48;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}
