// Package clicklog is the fire-and-forget analytics sink. Clicks are queued
// onto a bounded channel and persisted by a single background worker; when
// the queue is full the newest click is dropped, because redirect latency
// matters more than analytics completeness.
package clicklog

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"sync/atomic"
	"time"

	"burnlink/internal/repo"

	"github.com/rs/zerolog/log"
)

const (
	queueSize    = 1024
	writeTimeout = 5 * time.Second
)

// Location is a resolved geolocation for a click.
type Location struct {
	CountryCode string
	CountryName string
	Region      string
	City        string
}

// GeoResolver enriches clicks with a location. Returning nil is always
// acceptable; the click is stored with empty geo fields.
type GeoResolver interface {
	Resolve(ip string) *Location
}

// Sink persists click events. Implemented by repo.ClicksRepo.
type Sink interface {
	Create(ctx context.Context, event repo.ClickEvent) error
}

type hit struct {
	linkID    int64
	ip        string
	userAgent string
	referrer  string
	at        time.Time
}

type Logger struct {
	sink    Sink
	geo     GeoResolver
	queue   chan hit
	done    chan struct{}
	dropped atomic.Int64
}

func New(sink Sink, geo GeoResolver) *Logger {
	l := &Logger{
		sink:  sink,
		geo:   geo,
		queue: make(chan hit, queueSize),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

// LogClick enqueues a click without blocking. The raw IP never leaves this
// package unhashed.
func (l *Logger) LogClick(linkID int64, ip, userAgent, referrer string) {
	h := hit{linkID: linkID, ip: ip, userAgent: userAgent, referrer: referrer, at: time.Now().UTC()}

	select {
	case l.queue <- h:
	default:
		dropped := l.dropped.Add(1)
		log.Warn().Int64("link_id", linkID).Int64("dropped_total", dropped).Msg("click queue full, dropping click")
	}
}

// Dropped returns how many clicks were discarded due to a full queue.
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

// Close stops accepting clicks and waits for the queued ones to be written.
func (l *Logger) Close() {
	close(l.queue)
	<-l.done
}

func (l *Logger) run() {
	defer close(l.done)
	for h := range l.queue {
		l.record(h)
	}
}

func (l *Logger) record(h hit) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Int64("link_id", h.linkID).Msg("click logging panicked")
		}
	}()

	event := repo.ClickEvent{
		LinkID:     h.linkID,
		ClickedAt:  h.at,
		IPHash:     HashIP(h.ip),
		UserAgent:  h.userAgent,
		Referrer:   h.referrer,
		DeviceType: ParseDeviceType(h.userAgent),
		Browser:    ParseBrowser(h.userAgent),
	}

	if l.geo != nil {
		if loc := l.geo.Resolve(h.ip); loc != nil {
			event.CountryCode = &loc.CountryCode
			event.CountryName = &loc.CountryName
			event.Region = &loc.Region
			event.City = &loc.City
		}
	}

	// Detached from the request: the redirect that produced this click has
	// long been answered, so use our own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := l.sink.Create(ctx, event); err != nil {
		log.Error().Err(err).Int64("link_id", h.linkID).Msg("failed to persist click")
	}
}

// HashIP one-way hashes an IP address (SHA-256, base64) so raw addresses
// are never stored.
func HashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return base64.StdEncoding.EncodeToString(sum[:])
}
