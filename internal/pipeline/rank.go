package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/bill-advisor/internal/model"
	"github.com/sells-group/bill-advisor/internal/ranking"
	"github.com/sells-group/bill-advisor/internal/reconcile"
	"github.com/sells-group/bill-advisor/internal/store"
)

// RankResult is a ranking plus how it was produced.
type RankResult struct {
	Offers []model.RankedOffer `json:"offers"`
	Split  []model.BillProfile `json:"split,omitempty"`
	Cached bool                `json:"cached,omitempty"`
}

// Rank ranks a profile against the stored catalog. When the profile has an
// ID, a stored snapshot for the same catalog state is reused within
// CacheTTL and a fresh ranking is saved otherwise.
func (a *Analyzer) Rank(ctx context.Context, p model.BillProfile) (*RankResult, error) {
	if a.deps.Store == nil {
		return nil, eris.New("pipeline: ranking needs a store")
	}
	offers, err := a.deps.Store.ListOffers(ctx, "")
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list offers")
	}

	hash := ranking.CatalogHash(offers)
	if p.ID != "" {
		snap, err := a.deps.Store.GetRanking(ctx, p.ID)
		switch {
		case err == nil && ranking.Fresh(*snap, hash, a.opts.CacheTTL, time.Now().UTC()):
			zap.L().Debug("pipeline: ranking served from cache",
				zap.String("profile_id", p.ID),
				zap.String("snapshot_id", snap.ID),
			)
			return &RankResult{Offers: snap.Offers, Cached: true}, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return nil, eris.Wrap(err, "pipeline: get ranking")
		}
	}

	res, err := a.RankOffers(ctx, p, offers)
	if err != nil {
		return nil, err
	}

	if p.ID != "" {
		snap := ranking.NewSnapshot(p.ID, offers, res.Offers)
		if err := a.deps.Store.SaveRanking(ctx, &snap); err != nil {
			return nil, eris.Wrap(err, "pipeline: save ranking")
		}
	}
	return res, nil
}

// RankOffers ranks a profile against the given offers, applying the
// configured policies first: default consumption, then the combined-bill
// split. Every offer must pass model.ValidateOffer. Redirect links are
// checked when a link checker is configured.
func (a *Analyzer) RankOffers(ctx context.Context, p model.BillProfile, offers []model.EnergyOffer) (*RankResult, error) {
	for _, o := range offers {
		if err := model.ValidateOffer(o); err != nil {
			return nil, eris.Wrap(err, "pipeline: rank")
		}
	}

	if a.opts.DefaultKWh > 0 || a.opts.DefaultSmc > 0 {
		p = ranking.WithDefaultConsumption(p, a.opts.DefaultKWh, a.opts.DefaultSmc)
	}

	res := &RankResult{Offers: []model.RankedOffer{}}
	profiles := []model.BillProfile{p}
	if a.opts.SplitCombined && p.Kind() == model.BillCombined {
		elec, gas, err := reconcile.SplitCombinedTotal(p, a.opts.ElectricityShare)
		switch {
		case err == nil:
			profiles = []model.BillProfile{elec, gas}
			res.Split = profiles
		case !errors.Is(err, reconcile.ErrNotSplittable):
			return nil, eris.Wrap(err, "pipeline: split combined bill")
		}
	}

	for _, prof := range profiles {
		ranked, err := ranking.Rank(prof, offers)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: rank")
		}
		res.Offers = append(res.Offers, ranked...)
	}

	if err := a.checkLinks(ctx, res.Offers); err != nil {
		return nil, err
	}
	return res, nil
}

// checkLinks replaces each offer's redirect URL with one that is known to
// work, or clears it.
func (a *Analyzer) checkLinks(ctx context.Context, ranked []model.RankedOffer) error {
	if a.deps.Links == nil {
		return nil
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)
	for i := range ranked {
		i := i
		g.Go(func() error {
			o := &ranked[i].Offer
			link := ""
			if o.RedirectURL != nil {
				link = *o.RedirectURL
			}
			if out := a.deps.Links.Outbound(gCtx, link, o.ProviderName); out != "" {
				o.RedirectURL = model.String(out)
			} else {
				o.RedirectURL = nil
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "pipeline: check links")
	}
	return nil
}
