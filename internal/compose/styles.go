package compose

// styleFilters maps each visual-style tag to the color/contrast filter
// chain applied during the render pass. Unknown styles apply no filter.
var styleFilters = map[string]string{
	"cinematic": "eq=contrast=1.12:saturation=1.08,vignette=PI/5",
	"vibrant":   "eq=saturation=1.45:contrast=1.05",
	"noir":      "hue=s=0,eq=contrast=1.3:brightness=-0.03",
	"warm":      "colorbalance=rm=0.08:gm=0.02:bm=-0.08",
	"cool":      "colorbalance=rm=-0.08:gm=0.0:bm=0.10",
	"dream":     "gblur=sigma=1.2,eq=brightness=0.04:saturation=1.15",
	"retro":     "curves=vintage,noise=alls=6:allf=t",
}

// StyleFilter returns the filter chain for a style tag, empty when the tag
// is unknown or blank.
func StyleFilter(tag string) string {
	return styleFilters[tag]
}
