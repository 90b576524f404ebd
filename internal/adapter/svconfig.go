package adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/signalsfoundry/gnss-adapter/internal/logging"
	"github.com/signalsfoundry/gnss-adapter/internal/sbi"
	"github.com/signalsfoundry/gnss-adapter/model"
)

// configBatch is one UpdateConfig in flight. Each sub-field is sent as its
// own SetConfig under the batch correlation and acknowledged separately.
type configBatch struct {
	corr    sbi.Correlation
	p       *pending
	order   []model.ConfigField
	items   map[model.ConfigField]model.ConfigItem
	results map[model.ConfigField]model.LocationError
	waiting map[model.ConfigField]bool
}

// svReconciler tracks desired and acknowledged SV configuration. owner
// names the newest batch in flight for each SV sub-field; ackedBy the batch
// whose success is reflected in acked.
type svReconciler struct {
	desired model.SvConfig
	acked   model.SvConfig
	batches map[sbi.Correlation]*configBatch
	owner   map[model.ConfigField]sbi.Correlation
	ackedBy map[model.ConfigField]sbi.Correlation
}

func newSvReconciler(initial *model.SvConfig) svReconciler {
	cfg := model.DefaultSvConfig()
	if initial != nil {
		cfg = cloneSvConfig(*initial)
	}
	return svReconciler{
		desired: cloneSvConfig(cfg),
		acked:   cloneSvConfig(cfg),
		batches: make(map[sbi.Correlation]*configBatch),
		owner:   make(map[model.ConfigField]sbi.Correlation),
		ackedBy: make(map[model.ConfigField]sbi.Correlation),
	}
}

func cloneSvConfig(cfg model.SvConfig) model.SvConfig {
	cfg.Blacklist = cfg.Blacklist.Clone()
	return cfg
}

func svConfigEqual(a, b model.SvConfig) bool {
	return a.Blacklist.Equal(b.Blacklist) &&
		a.Enabled == b.Enabled &&
		a.SecondaryBandMask == b.SecondaryBandMask
}

// svItems expands cfg into the three SV sub-fields in their canonical order.
func svItems(cfg model.SvConfig) []model.ConfigItem {
	return []model.ConfigItem{
		model.BlacklistConfig{Blacklist: cfg.Blacklist.Clone()},
		model.ConstellationConfig{Enabled: cfg.Enabled},
		model.SecondaryBandConfig{Mask: cfg.SecondaryBandMask},
	}
}

// applySvItem writes item into cfg and reports whether it is an SV sub-field.
func applySvItem(cfg *model.SvConfig, item model.ConfigItem) bool {
	switch it := item.(type) {
	case model.BlacklistConfig:
		cfg.Blacklist = it.Blacklist.Clone()
	case model.ConstellationConfig:
		cfg.Enabled = it.Enabled
	case model.SecondaryBandConfig:
		cfg.SecondaryBandMask = it.Mask
	default:
		return false
	}
	return true
}

// settle records the outcome of field in batch corr. A success is applied to
// acked unless a later batch was already acknowledged for the field. Once no
// batch owns the field, desired falls back to acked. It reports whether acked
// changed.
func (r *svReconciler) settle(corr sbi.Correlation, field model.ConfigField, item model.ConfigItem, ok bool) bool {
	changed := false
	if ok && corr >= r.ackedBy[field] {
		changed = applySvItem(&r.acked, item)
		if changed {
			r.ackedBy[field] = corr
		}
	}
	if owner, busy := r.owner[field]; busy && owner == corr {
		delete(r.owner, field)
	}
	if _, busy := r.owner[field]; !busy {
		r.revertSvField(field)
	}
	return changed
}

// blacklistUnchanged reports whether bl matches the acknowledged blacklist
// with no blacklist change in flight.
func (r *svReconciler) blacklistUnchanged(bl model.Blacklist) bool {
	if _, busy := r.owner[model.FieldBlacklist]; busy {
		return false
	}
	return bl.Equal(r.acked.Blacklist)
}

// revertSvField restores one desired sub-field from the acknowledged state.
func (r *svReconciler) revertSvField(field model.ConfigField) {
	switch field {
	case model.FieldBlacklist:
		r.desired.Blacklist = r.acked.Blacklist.Clone()
	case model.FieldConstellationMask:
		r.desired.Enabled = r.acked.Enabled
	case model.FieldSecondaryBand:
		r.desired.SecondaryBandMask = r.acked.SecondaryBandMask
	}
}

func validateConfigItem(item model.ConfigItem) error {
	all := model.AllConstellations()
	switch it := item.(type) {
	case model.BlacklistConfig:
		for c := range it.Blacklist {
			if model.MaskOf(c) == 0 || all&model.MaskOf(c) == 0 {
				return fmt.Errorf("blacklist names unknown constellation %d", c)
			}
		}
	case model.ConstellationConfig:
		if it.Enabled&^all != 0 {
			return fmt.Errorf("constellation mask %#x has unknown bits", it.Enabled)
		}
	case model.SecondaryBandConfig:
		if it.Mask&^all != 0 {
			return fmt.Errorf("secondary band mask %#x has unknown bits", it.Mask)
		}
	case model.MinSvElevationConfig:
		if it.Degrees > 90 {
			return fmt.Errorf("min sv elevation %d out of range", it.Degrees)
		}
	}
	return nil
}

func (a *Adapter) setSvConfig(p *pending, c SetSvConfig) {
	var items []model.ConfigItem
	if c.Blacklist != nil {
		items = append(items, model.BlacklistConfig{Blacklist: c.Blacklist.Clone()})
	}
	if c.Enabled != nil {
		items = append(items, model.ConstellationConfig{Enabled: *c.Enabled})
	}
	if c.SecondaryBand != nil {
		items = append(items, model.SecondaryBandConfig{Mask: *c.SecondaryBand})
	}
	a.startBatch(p.ctx, p, items, false)
}

func (a *Adapter) resetSvConfig(p *pending) {
	a.startBatch(p.ctx, p, svItems(model.DefaultSvConfig()), false)
}

func (a *Adapter) updateConfig(p *pending, items []model.ConfigItem) {
	a.startBatch(p.ctx, p, items, false)
}

// reapplySvConfig pushes the acknowledged SV configuration into a freshly
// started engine when it differs from the engine default.
func (a *Adapter) reapplySvConfig(ctx context.Context) {
	a.sv.desired = cloneSvConfig(a.sv.acked)
	clear(a.sv.owner)
	if svConfigEqual(a.sv.acked, model.DefaultSvConfig()) {
		return
	}
	a.log.Info(ctx, "re-applying sv config", logging.String("blacklist", a.sv.acked.Blacklist.String()))
	a.startBatch(ctx, nil, svItems(a.sv.acked), true)
}

// startBatch validates and issues a configuration batch. p is nil for
// batches the adapter issues itself. force disables the unchanged
// blacklist short-circuit.
func (a *Adapter) startBatch(ctx context.Context, p *pending, items []model.ConfigItem, force bool) {
	if len(items) == 0 {
		a.complete(p, Result{})
		return
	}

	b := &configBatch{
		items:   make(map[model.ConfigField]model.ConfigItem, len(items)),
		results: make(map[model.ConfigField]model.LocationError, len(items)),
		waiting: make(map[model.ConfigField]bool, len(items)),
		p:       p,
	}
	for _, item := range items {
		if item == nil {
			a.complete(p, Result{Err: fmt.Errorf("%w: nil config item", ErrInvalidParameter)})
			return
		}
		field := item.Field()
		if _, dup := b.items[field]; dup {
			a.complete(p, Result{Err: fmt.Errorf("%w: duplicate config field %s", ErrInvalidParameter, field)})
			return
		}
		if err := validateConfigItem(item); err != nil {
			a.complete(p, Result{Err: fmt.Errorf("%w: %v", ErrInvalidParameter, err)})
			return
		}
		b.items[field] = item
		b.order = append(b.order, field)
	}

	if !a.engineUp {
		for _, f := range b.order {
			b.results[f] = model.LocationEngineUnavailable
		}
		a.finishBatch(b, ErrEngineUnavailable)
		return
	}

	b.corr = a.nextCorrelation()
	for _, field := range b.order {
		item := b.items[field]
		if bl, ok := item.(model.BlacklistConfig); ok && !force && a.sv.blacklistUnchanged(bl.Blacklist) {
			b.results[field] = model.LocationSuccess
			continue
		}
		if err := a.send(ctx, sbi.SetConfig{Correlation: b.corr, Item: item}); err != nil {
			if errors.Is(err, ErrEngineUnavailable) {
				b.results[field] = model.LocationEngineUnavailable
			} else {
				b.results[field] = model.LocationGeneralFailure
			}
			continue
		}
		if applySvItem(&a.sv.desired, item) {
			a.sv.owner[field] = b.corr
		}
		b.waiting[field] = true
	}

	if len(b.waiting) == 0 {
		a.finishBatch(b, ErrEngineFailure)
		return
	}
	a.sv.batches[b.corr] = b
	a.log.Debug(ctx, "config batch sent",
		logging.String("correlation", b.corr.String()),
		logging.Int("fields", len(b.waiting)),
	)
}

func (a *Adapter) onConfigAck(ctx context.Context, ack sbi.ConfigAck) {
	b, ok := a.sv.batches[ack.Correlation]
	if !ok || !b.waiting[ack.Field] {
		a.log.Debug(ctx, "ignoring config ack",
			logging.String("correlation", ack.Correlation.String()),
			logging.String("field", ack.Field.String()),
		)
		return
	}
	delete(b.waiting, ack.Field)
	b.results[ack.Field] = ack.Err

	changed := a.sv.settle(b.corr, ack.Field, b.items[ack.Field], ack.Err.OK())
	if changed && a.cfg.svStore != nil {
		a.cfg.svStore.SaveSvConfig(cloneSvConfig(a.sv.acked))
	}
	if !ack.Err.OK() {
		a.log.Warn(ctx, "engine rejected config field",
			logging.String("field", ack.Field.String()),
			logging.String("error", ack.Err.String()),
		)
	}

	if len(b.waiting) == 0 {
		delete(a.sv.batches, b.corr)
		a.finishBatch(b, ErrEngineFailure)
	}
}

// finishBatch completes the batch with results in request order. allFailed
// is the error used when no field succeeded.
func (a *Adapter) finishBatch(b *configBatch, allFailed error) {
	fields := make([]model.FieldResult, 0, len(b.order))
	failed := 0
	for _, f := range b.order {
		code := b.results[f]
		if !code.OK() {
			failed++
		}
		fields = append(fields, model.FieldResult{Field: f, Err: code})
	}

	var err error
	switch {
	case failed == 0:
	case failed == len(fields):
		err = fmt.Errorf("%w: all %d config fields failed", allFailed, failed)
	default:
		err = fmt.Errorf("%w: %d of %d config fields failed", ErrPartialFailure, failed, len(fields))
	}
	a.complete(b.p, Result{Err: err, Fields: fields})
}

// failConfigBatches completes every outstanding batch, marking fields that
// were never acknowledged with code.
func (a *Adapter) failConfigBatches(code model.LocationError, allFailed error) {
	corrs := make([]sbi.Correlation, 0, len(a.sv.batches))
	for corr := range a.sv.batches {
		corrs = append(corrs, corr)
	}
	sort.Slice(corrs, func(i, j int) bool { return corrs[i] < corrs[j] })

	for _, corr := range corrs {
		b := a.sv.batches[corr]
		delete(a.sv.batches, corr)
		for f := range b.waiting {
			b.results[f] = code
			a.sv.settle(corr, f, b.items[f], false)
		}
		b.waiting = map[model.ConfigField]bool{}
		a.finishBatch(b, allFailed)
	}
}
