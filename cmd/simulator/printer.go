package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/gnss-adapter/internal/adapter"
	"github.com/signalsfoundry/gnss-adapter/model"
)

// odcpiAnswerTimeout bounds one coarse position injection.
const odcpiAnswerTimeout = 5 * time.Second

// printer is the in-process client of the demo. Its handlers run on the
// adapter executor, so they only format output and count.
type printer struct {
	a        *adapter.Adapter
	w        io.Writer
	receiver model.Location
	nmea     bool
	quiet    bool

	fixes     atomic.Int64
	svReports atomic.Int64
	maxSvs    atomic.Int64
	odcpi     atomic.Int64
	wg        sync.WaitGroup
}

func (p *printer) ID() model.ClientID { return demoClient }

func (p *printer) OnPosition(key model.SessionKey, loc model.Location) {
	p.fixes.Add(1)
	if p.quiet {
		return
	}
	fmt.Fprintf(p.w, "[%s] fix %s lat=%.6f lon=%.6f alt=%.1f acc=%.1fm speed=%.1fm/s\n",
		loc.Timestamp.Format(time.RFC3339), key, loc.Latitude, loc.Longitude,
		loc.Altitude, loc.HorizontalAccuracy, loc.Speed)
}

func (p *printer) OnSvReport(report model.SvReport) {
	p.svReports.Add(1)
	if n := int64(len(report.Svs)); n > p.maxSvs.Load() {
		p.maxSvs.Store(n)
	}
	if p.quiet {
		return
	}
	used := 0
	for _, sv := range report.Svs {
		if sv.UsedInFix {
			used++
		}
	}
	fmt.Fprintf(p.w, "[%s] ↳ %d in view, %d used\n",
		report.Timestamp.Format(time.RFC3339), len(report.Svs), used)
}

func (p *printer) OnNmea(report model.NmeaReport) {
	if p.nmea && !p.quiet {
		fmt.Fprintf(p.w, "  %s\n", report.Sentence)
	}
}

// OnOdcpiRequest answers with the configured receiver position from a
// separate goroutine.
func (p *printer) OnOdcpiRequest(req model.OdcpiRequest) {
	p.odcpi.Add(1)
	if !p.quiet {
		fmt.Fprintf(p.w, "ODCPI requested (emergency=%v), injecting coarse position\n", req.Emergency)
	}
	loc := p.receiver
	loc.HorizontalAccuracy = 1000
	loc.Tech = model.TechInjected
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), odcpiAnswerTimeout)
		defer cancel()
		h, err := p.a.Submit(ctx, adapter.InjectOdcpi{Client: demoClient, Location: loc})
		if err != nil {
			return
		}
		_, _ = h.Wait(ctx)
	}()
}
