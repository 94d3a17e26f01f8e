package platforms

import "strings"

// AuthFlow describes how a platform's login provider obtains a token.
type AuthFlow string

const (
	// AuthFlowBrowser relays credentials through a headless browser and scrapes the token.
	AuthFlowBrowser AuthFlow = "browser"
	// AuthFlowAPI posts credentials straight to a REST endpoint.
	AuthFlowAPI AuthFlow = "api"
	// AuthFlowOAuth uses an OAuth2 password grant against an OIDC issuer.
	AuthFlowOAuth AuthFlow = "oauth"
)

const environmentPlaceholder = "{{environment}}"

// Descriptor identifies which kind of platform a connection belongs to.
// Connections carry a copy, never a reference, so they stay self-describing.
type Descriptor struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Platform is a catalog entry. Only the Descriptor part is copied into connections.
type Platform struct {
	Descriptor
	AuthFlow AuthFlow `json:"authFlow"`
	LogoURL  string   `json:"logoUrl"` // May contain {{environment}}
}

// Logo returns the platform logo, substituting the environment when the URL is templated.
func (p Platform) Logo(environment string) string {
	if environment != "" && strings.Contains(p.LogoURL, environmentPlaceholder) {
		return strings.ReplaceAll(p.LogoURL, environmentPlaceholder, environment)
	}
	return p.LogoURL
}

var (
	Wipimo = Platform{
		Descriptor: Descriptor{
			Slug:        "wipimo",
			Name:        "Wipimo",
			Description: "Wipimo property management platform",
		},
		AuthFlow: AuthFlowBrowser,
		LogoURL:  "https://{{environment}}.wipimo.fr/logo.png",
	}

	X14 = Platform{
		Descriptor: Descriptor{
			Slug:        "x14",
			Name:        "X14",
			Description: "X14 property management platform",
		},
		AuthFlow: AuthFlowAPI,
		LogoURL:  "https://{{environment}}.mygercop.com/logo.png",
	}
)
