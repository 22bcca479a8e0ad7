// Package report renders research findings as a markdown report.
package report

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/agentpay/internal/domain/resource"
	"github.com/kailas-cloud/agentpay/internal/logger"
)

// Service builds reports. Without a Writer the findings are listed verbatim.
type Service struct {
	writer Writer
	logger *zap.Logger
}

// New creates a report Service.
func New(logger *zap.Logger) *Service {
	return &Service{logger: logger}
}

// WithWriter attaches a prose writer. Writer failures fall back to the plain listing.
func (s *Service) WithWriter(w Writer) *Service {
	s.writer = w
	return s
}

// Generate returns "## <theme>" followed by the report body.
func (s *Service) Generate(ctx context.Context, theme string, findings []resource.Resource) (string, error) {
	notes := Notes(findings)
	body := notes

	if s.writer != nil && len(findings) > 0 {
		text, err := s.writer.Write(ctx, theme, notes)
		switch {
		case err != nil:
			logger.FromContextOr(ctx, s.logger).Warn("Report writer failed, using plain listing", zap.Error(err))
		case strings.TrimSpace(text) != "":
			body = strings.TrimSpace(text)
		}
	}
	return "## " + theme + "\n\n" + body, nil
}

// Notes lists findings as markdown sections.
func Notes(findings []resource.Resource) string {
	if len(findings) == 0 {
		return "No data found."
	}
	var b strings.Builder
	for i, f := range findings {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("### ")
		b.WriteString(f.Name())
		if d := strings.TrimSpace(f.Description()); d != "" {
			b.WriteString("\n\n")
			b.WriteString(d)
		}
	}
	return b.String()
}
