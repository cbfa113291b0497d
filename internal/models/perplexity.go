package models

import (
	"fmt"
	"strings"

	"github.com/n0madic/go-chatpipe/internal/codec"
)

// PerplexityModels lists the accepted sonar model ids.
var PerplexityModels = []string{
	"sonar-reasoning-pro",
	"sonar-reasoning",
	"sonar-pro",
	"sonar",
	"sonar-deep-research",
}

const perplexityLegacyPrefix = "perplexity_sonar_models."

// ResolvePerplexityModel strips the display prefix from id and checks it
// against PerplexityModels.
func ResolvePerplexityModel(id, prefix string) (string, error) {
	name := strings.TrimSpace(id)
	if prefix != "" {
		name = strings.TrimPrefix(name, prefix)
	}
	name = strings.TrimPrefix(name, perplexityLegacyPrefix)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	for _, m := range PerplexityModels {
		if m == name {
			return name, nil
		}
	}
	return "", codec.Errorf(codec.ValidationError,
		"invalid model %q, valid models are: %s", name, strings.Join(PerplexityModels, ", "))
}

// PerplexityDisplayName is the listed name of a sonar model.
func PerplexityDisplayName(prefix, model string) string {
	return fmt.Sprintf("%s%s", prefix, model)
}
