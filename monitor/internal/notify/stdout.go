package notify

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/Tina0529/chatbot-kb-monitor/monitor/report"
)

// Stdout writes the report as one JSON document to an io.Writer
// (default os.Stdout). The default sink when nothing else is
// configured.
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return &Stdout{enc: enc}
}

func (s *Stdout) Notify(_ context.Context, rep *report.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(rep)
}

func (s *Stdout) Close() error { return nil }
