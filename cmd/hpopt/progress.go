package main

import (
	"net/http"
	"time"

	"github.com/gorgonia/torsk/hpopt"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// progress is one search update, as sent to websocket clients.
type progress struct {
	Call    int                `json:"call"`
	Calls   int                `json:"calls"`
	X       map[string]float64 `json:"x"`
	Loss    float64            `json:"loss"`
	Best    float64            `json:"best"`
	Elapsed string             `json:"elapsed"`
}

// Progress streams search updates to a websocket client. Updates are dropped while nobody listens,
// so the search never waits on the network.
type Progress struct {
	calls   int
	start   time.Time
	updates chan progress
	logger  *zap.SugaredLogger
}

var upgrader = websocket.Upgrader{} // use default options

// NewProgress creates a progress stream for a search of calls evaluations.
func NewProgress(calls int, logger *zap.SugaredLogger) *Progress {
	return &Progress{
		calls:   calls,
		start:   time.Now(),
		updates: make(chan progress, 16),
		logger:  logger,
	}
}

func (p *Progress) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Warnw("websocket upgrade failed", "err", err)
		return
	}
	defer c.Close()
	for {
		select {
		case u := <-p.updates:
			if err := c.WriteJSON(u); err != nil {
				p.logger.Infow("progress client gone", "err", err)
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// Callback is a search callback sending the latest evaluation.
func (p *Progress) Callback(res *hpopt.Result) error {
	n := len(res.Xs)
	if n == 0 {
		return nil
	}
	x := make(map[string]float64, len(res.Space))
	for i, d := range res.Space {
		x[d.Name] = res.Xs[n-1][i]
	}
	u := progress{
		Call:    n,
		Calls:   p.calls,
		X:       x,
		Loss:    res.FuncVals[n-1],
		Best:    res.Fun,
		Elapsed: time.Since(p.start).Round(time.Second).String(),
	}
	select {
	case p.updates <- u:
	default:
	}
	return nil
}
