// Package device summarizes the browser behind a subject-facing request for
// logs. Nothing here takes part in authorization.
package device

import (
	"context"
	"fmt"

	"github.com/mssola/useragent"

	"flowgate/pkg/requestcontext"
)

// Info is the parsed User-Agent of the request.
type Info struct {
	Browser string
	Version string
	OS      string
	Mobile  bool
	Bot     bool
}

// Parse extracts browser and OS from a raw User-Agent header.
func Parse(raw string) Info {
	ua := useragent.New(raw)
	name, version := ua.Browser()
	return Info{
		Browser: name,
		Version: version,
		OS:      ua.OS(),
		Mobile:  ua.Mobile(),
		Bot:     ua.Bot(),
	}
}

func (i Info) String() string {
	if i.Browser == "" {
		return "unknown"
	}
	return fmt.Sprintf("%s %s on %s", i.Browser, i.Version, i.OS)
}

// FromContext parses the User-Agent stored by the metadata middleware.
func FromContext(ctx context.Context) Info {
	return Parse(requestcontext.UserAgent(ctx))
}
