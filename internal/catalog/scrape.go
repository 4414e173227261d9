package catalog

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/bill-advisor/internal/extract"
	"github.com/sells-group/bill-advisor/internal/model"
	"github.com/sells-group/bill-advisor/internal/resilience"
	"github.com/sells-group/bill-advisor/pkg/firecrawl"
)

// Scraper turns offer web pages into partial catalog records.
type Scraper struct {
	client      firecrawl.Client
	extractor   *extract.Extractor
	retry       resilience.RetryConfig
	concurrency int
}

// NewScraper creates a Scraper. A nil extractor uses the default provider
// rules.
func NewScraper(client firecrawl.Client, extractor *extract.Extractor, retry resilience.RetryConfig) *Scraper {
	if extractor == nil {
		extractor = extract.New(nil)
	}
	retry.ShouldRetry = firecrawl.IsRetryable
	return &Scraper{client: client, extractor: extractor, retry: retry, concurrency: 4}
}

// ScrapeOffer fetches one offer page and parses it. hint picks the
// commodity when the page prices both or neither.
func (s *Scraper) ScrapeOffer(ctx context.Context, url string, hint model.Commodity) (model.EnergyOffer, error) {
	cfg := s.retry
	cfg.OnRetry = resilience.RetryLogger("firecrawl", "scrape")
	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*firecrawl.ScrapeResponse, error) {
		return s.client.Scrape(ctx, firecrawl.ScrapeRequest{
			URL:             url,
			Formats:         []string{firecrawl.FormatMarkdown, firecrawl.FormatHTML},
			OnlyMainContent: true,
		})
	})
	if err != nil {
		return model.EnergyOffer{}, err
	}
	return s.ParsePage(url, resp.Data, hint)
}

// ScrapeOffers scrapes several pages concurrently. Pages that fail are
// logged and left out; an error is returned only if none succeed.
func (s *Scraper) ScrapeOffers(ctx context.Context, urls []string, hint model.Commodity) ([]model.EnergyOffer, error) {
	results := make([]*model.EnergyOffer, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			o, err := s.ScrapeOffer(gctx, u, hint)
			if err != nil {
				zap.L().Warn("catalog: scrape failed", zap.String("url", u), zap.Error(err))
				return nil
			}
			results[i] = &o
			return nil
		})
	}
	_ = g.Wait()

	var offers []model.EnergyOffer
	for _, o := range results {
		if o != nil {
			offers = append(offers, *o)
		}
	}
	if len(offers) == 0 && len(urls) > 0 {
		return nil, eris.New("catalog: no offer page could be scraped")
	}
	return offers, nil
}

// BatchScrapeOffers submits all pages as one Firecrawl batch job and parses
// whatever comes back. Pages whose content cannot be parsed are logged and
// left out. Use it for catalog refreshes where one job beats many calls.
func (s *Scraper) BatchScrapeOffers(ctx context.Context, urls []string, hint model.Commodity, opts ...firecrawl.PollOption) ([]model.EnergyOffer, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	job, err := s.client.BatchScrape(ctx, firecrawl.BatchScrapeRequest{
		URLs:            urls,
		Formats:         []string{firecrawl.FormatMarkdown, firecrawl.FormatHTML},
		OnlyMainContent: true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "catalog: submit batch scrape")
	}
	if !job.Success || job.ID == "" {
		return nil, eris.New("catalog: batch scrape was not accepted")
	}

	status, err := firecrawl.PollBatchScrape(ctx, s.client, job.ID, opts...)
	if err != nil {
		return nil, err
	}

	var offers []model.EnergyOffer
	for _, page := range status.Data {
		url := page.Metadata.SourceURL
		if url == "" {
			continue
		}
		o, err := s.ParsePage(url, page, hint)
		if err != nil {
			zap.L().Warn("catalog: batch page skipped", zap.String("url", url), zap.Error(err))
			continue
		}
		offers = append(offers, o)
	}
	zap.L().Info("catalog: batch scrape parsed",
		zap.String("job_id", job.ID),
		zap.Int("pages", len(status.Data)),
		zap.Int("offers", len(offers)),
	)
	if len(offers) == 0 {
		return nil, eris.New("catalog: no offer page could be scraped")
	}
	return offers, nil
}

// ParsePage builds an offer from scraped page content. Markdown is
// preferred; HTML is flattened to text when markdown is empty.
func (s *Scraper) ParsePage(url string, page firecrawl.PageData, hint model.Commodity) (model.EnergyOffer, error) {
	text := page.Markdown
	if strings.TrimSpace(text) == "" && page.HTML != "" {
		var err error
		if text, err = HTMLToText(page.HTML); err != nil {
			return model.EnergyOffer{}, err
		}
	}
	if strings.TrimSpace(text) == "" {
		return model.EnergyOffer{}, eris.Errorf("catalog: page %s has no content", url)
	}
	o := ParseOfferText(s.extractor, text, hint)
	o.OfferID = OfferID(url)
	o.PlanName = strings.TrimSpace(page.Metadata.Title)
	o.RedirectURL = model.String(url)
	if o.ProviderName == "" {
		o.ProviderName = model.UnknownProvider
	}
	if err := model.ValidateOffer(o); err != nil {
		return model.EnergyOffer{}, eris.Wrapf(err, "catalog: parse %s", url)
	}
	return o, nil
}

// OfferID derives a stable id from a page URL.
func OfferID(url string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).String()
}

// ParseOfferText reads prices and labels out of offer page text using the
// bill extractor's numeric anchors. Fields that are not found stay empty.
func ParseOfferText(e *extract.Extractor, text string, hint model.Commodity) model.EnergyOffer {
	c := e.Extract(text)

	var o model.EnergyOffer
	if v, ok := c[model.FieldSupplierName].Text(); ok {
		o.ProviderName = v
	}
	kwh, hasKWh := c[model.FieldUnitPriceEURPerKWh].Number()
	smc, hasSmc := c[model.FieldUnitPriceEURPerSmc].Number()

	switch {
	case hasKWh && (!hasSmc || hint != model.CommodityGas):
		o.Commodity = model.CommodityElectricity
		o.UnitPriceEURPerKWh = model.Float(kwh)
	case hasSmc:
		o.Commodity = model.CommodityGas
		o.UnitPriceEURPerSmc = model.Float(smc)
	default:
		o.Commodity = hint
	}
	if fee, ok := c[model.FieldFixedFeeEURPerMonth].Number(); ok {
		o.FixedFeeEURPerMonth = fee
	}

	lower := strings.ToLower(text)
	o.IsGreen = containsAny(lower, greenWords)
	o.PricingModel = pricingModel(lower)
	return o
}

var greenWords = []string{"rinnovabil", "energia verde", "100% green", "green", "garanzia d'origine", "co2 compensat"}

func pricingModel(lower string) model.PricingModel {
	switch {
	case containsAny(lower, []string{"indicizzat", "pun ", "psv ", "pun+", "psv+"}):
		return model.PricingIndexed
	case containsAny(lower, []string{"prezzo fisso", "prezzo bloccato", "bloccato per"}):
		return model.PricingFixed
	case strings.Contains(lower, "variabil"):
		return model.PricingVariable
	}
	return ""
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// HTMLToText flattens an HTML page to text, one block element per line.
// Scripts, styles and navigation are dropped.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", eris.Wrap(err, "catalog: parse html")
	}
	doc.Find("script, style, noscript, nav, footer, header").Remove()

	var lines []string
	doc.Find("h1, h2, h3, h4, p, li, td, th, div").Each(func(_ int, sel *goquery.Selection) {
		if sel.Children().Filter("h1, h2, h3, h4, p, li, table, div").Length() > 0 {
			return
		}
		line := strings.Join(strings.Fields(sel.Text()), " ")
		if line != "" {
			lines = append(lines, line)
		}
	})
	if len(lines) == 0 {
		return strings.Join(strings.Fields(doc.Text()), " "), nil
	}
	return strings.Join(lines, "\n"), nil
}
