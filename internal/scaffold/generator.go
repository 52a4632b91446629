package scaffold

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/PrathamGupta06/website-developer/internal/staging"
)

// Request carries everything a generator needs for one round.
type Request struct {
	Brief       string
	Checks      []string
	Round       int
	Attachments []Attachment
}

// Generator stages site content for a round. Round 1 starts from an
// empty repository; later rounds see whatever the previous round
// committed and may stage deletions.
type Generator interface {
	Generate(ctx context.Context, area *staging.Area, req Request) error
}

// TemplateGenerator stages the starter site. It is the default
// Generator; content engines with real generation replace it behind
// the same interface.
type TemplateGenerator struct {
	logger *zap.Logger
}

func NewTemplateGenerator(logger *zap.Logger) *TemplateGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateGenerator{logger: logger}
}

func (g *TemplateGenerator) Generate(ctx context.Context, area *staging.Area, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	area.StageUpsert("index.html", []byte(renderHTML(req.Brief)))
	area.StageUpsert("script.js", []byte(renderJS(req.Brief)))
	area.StageUpsert("style.css", []byte(styleCSS))
	area.StageUpsert("README.md", []byte(renderReadme(req.Brief, req.Checks)))
	area.StageUpsert("LICENSE", []byte(mitLicense))

	for _, att := range req.Attachments {
		name := path.Base(att.Name)
		if name == "" || name == "." || name == "/" {
			g.logger.Warn("skipping attachment with unusable name", zap.String("name", att.Name))
			continue
		}
		area.StageUpsert(path.Join("attachments", name), att.Data)
	}

	g.logger.Info("staged starter site",
		zap.Int("round", req.Round),
		zap.Int("attachments", len(req.Attachments)),
		zap.Int("staged_paths", area.Len()))
	return nil
}

func renderHTML(brief string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Generated Web App</title>
    <link rel="stylesheet" href="style.css">
</head>
<body>
    <div class="container">
        <h1>Generated Web Application</h1>
        <p>Brief: %s</p>
        <div id="app-content">
            <!-- Application content will be generated here -->
        </div>
    </div>
    <script src="script.js"></script>
</body>
</html>`, brief)
}

func renderJS(brief string) string {
	return fmt.Sprintf(`// Generated JavaScript for: %s
document.addEventListener('DOMContentLoaded', function() {
    console.log('Application loaded');

    const urlParams = new URLSearchParams(window.location.search);
    const url = urlParams.get('url');

    if (url) {
        console.log('URL parameter found:', url);
        handleUrlParameter(url);
    } else {
        console.log('No URL parameter, using default');
        handleDefault();
    }
});

function handleUrlParameter(url) {
    console.log('Processing URL:', url);
}

function handleDefault() {
    console.log('Using default behavior');
}`, brief)
}

const styleCSS = `/* Generated CSS */
body {
    font-family: Arial, sans-serif;
    margin: 0;
    padding: 20px;
    background-color: #f5f5f5;
}

.container {
    max-width: 800px;
    margin: 0 auto;
    background: white;
    padding: 20px;
    border-radius: 8px;
    box-shadow: 0 2px 10px rgba(0,0,0,0.1);
}

h1 {
    color: #333;
    text-align: center;
}

#app-content {
    margin-top: 20px;
    padding: 20px;
    border: 1px solid #ddd;
    border-radius: 4px;
}`

func renderReadme(brief string, checks []string) string {
	var sb strings.Builder
	for _, check := range checks {
		fmt.Fprintf(&sb, "- %s\n", check)
	}
	return fmt.Sprintf(`# Generated Web Application

## Description
%s

## Requirements
%s
## Setup
1. Clone this repository
2. Open `+"`index.html`"+` in a web browser
3. For URL parameter testing, use: `+"`index.html?url=your-image-url`"+`

## Usage
This application was automatically generated based on the provided brief and requirements.

## License
MIT License - see LICENSE file for details
`, brief, sb.String())
}

const mitLicense = `MIT License

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.`
