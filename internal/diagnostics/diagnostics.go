// Package diagnostics captures failure evidence for a step attempt: a
// viewport screenshot and a depth-bounded DOM snapshot.
package diagnostics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/jharden0x1/steppilot/api/schemas"
)

// Snapshotter is the slice of the browser session the capturer needs.
type Snapshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
	DOMHTML(ctx context.Context) (string, error)
}

// Capturer writes diagnostic artifacts under a run-scoped directory.
type Capturer struct {
	dir      string
	maxDepth int
	logger   *zap.Logger
}

func NewCapturer(dir string, maxDepth int, logger *zap.Logger) (*Capturer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	return &Capturer{dir: dir, maxDepth: maxDepth, logger: logger}, nil
}

// Capture grabs a screenshot and a pruned DOM snapshot for a failed step
// attempt. Partial capture is not an error: whatever was obtained is
// returned, and individual capture failures are logged and skipped.
func (c *Capturer) Capture(ctx context.Context, snap Snapshotter, stepText, stage string) []schemas.Artifact {
	now := time.Now()
	base := fmt.Sprintf("%s_%s_%s", now.Format("20060102-150405.000"), slug(stepText), stage)

	var artifacts []schemas.Artifact
	if png, err := snap.Screenshot(ctx); err != nil {
		c.logger.Warn("Failed to capture failure screenshot.", zap.Error(err))
	} else {
		path := filepath.Join(c.dir, base+".png")
		if err := os.WriteFile(path, png, 0o644); err != nil {
			c.logger.Warn("Failed to write screenshot artifact.", zap.Error(err))
		} else {
			artifacts = append(artifacts, schemas.Artifact{Kind: "screenshot", Path: path, Step: stepText, Timestamp: now})
		}
	}

	if dom, err := snap.DOMHTML(ctx); err != nil {
		c.logger.Warn("Failed to capture DOM snapshot.", zap.Error(err))
	} else {
		pruned, err := PruneHTML(dom, c.maxDepth)
		if err != nil {
			c.logger.Warn("Failed to prune DOM snapshot, keeping raw markup.", zap.Error(err))
			pruned = dom
		}
		path := filepath.Join(c.dir, base+".html")
		if err := os.WriteFile(path, []byte(pruned), 0o644); err != nil {
			c.logger.Warn("Failed to write DOM artifact.", zap.Error(err))
		} else {
			artifacts = append(artifacts, schemas.Artifact{Kind: "dom", Path: path, Step: stepText, Timestamp: now})
		}
	}
	return artifacts
}

// PruneHTML re-renders the markup with element nesting capped at maxDepth.
// Subtrees below the cap are replaced by a comment so the snapshot stays
// readable without ballooning on deeply nested component trees.
func PruneHTML(markup string, maxDepth int) (string, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("failed to parse DOM snapshot: %w", err)
	}
	prune(doc, 0, maxDepth)

	var b strings.Builder
	if err := html.Render(&b, doc); err != nil {
		return "", fmt.Errorf("failed to render pruned DOM: %w", err)
	}
	return b.String(), nil
}

func prune(n *html.Node, depth, maxDepth int) {
	if n.Type == html.ElementNode && depth >= maxDepth {
		for n.FirstChild != nil {
			n.RemoveChild(n.FirstChild)
		}
		n.AppendChild(&html.Node{Type: html.CommentNode, Data: " pruned "})
		return
	}
	next := depth
	if n.Type == html.ElementNode {
		next++
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		prune(child, next, maxDepth)
	}
}

// slug compresses step text into a filesystem-safe fragment.
func slug(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	s := strings.Trim(b.String(), "-")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}
