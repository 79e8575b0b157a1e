package catalog

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/flexishop/internal/model"
)

// Load results recorded in catalogLoadsTotal.
const (
	resultPrimary  = "primary"
	resultFallback = "fallback"
	resultFailed   = "failed"
)

var catalogLoadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "flexishop_catalog_loads_total",
		Help: "Catalog load attempts by outcome",
	},
	[]string{"result"},
)

// LoadError reports that both the primary and the fallback location failed.
type LoadError struct {
	Primary     string
	PrimaryErr  error
	Fallback    string
	FallbackErr error
}

func (e *LoadError) Error() string {
	if e.FallbackErr == nil {
		return fmt.Sprintf("catalog load failed: %s: %v", e.Primary, e.PrimaryErr)
	}
	return fmt.Sprintf("catalog load failed: %s: %v; fallback %s: %v",
		e.Primary, e.PrimaryErr, e.Fallback, e.FallbackErr)
}

func (e *LoadError) Unwrap() []error {
	errs := []error{e.PrimaryErr}
	if e.FallbackErr != nil {
		errs = append(errs, e.FallbackErr)
	}
	return errs
}

// Loader fetches the catalog from Primary and, only if that fails, from
// Fallback. There is no other retry.
type Loader struct {
	Source   Source
	Primary  string
	Fallback string
	Logger   *zap.Logger
}

// Load returns the decoded product list or a *LoadError.
func (l *Loader) Load(ctx context.Context) ([]model.Product, error) {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	products, primaryErr := l.fetch(ctx, l.Primary)
	if primaryErr == nil {
		catalogLoadsTotal.WithLabelValues(resultPrimary).Inc()
		logger.Info("catalog loaded",
			zap.String("location", l.Primary),
			zap.Int("products", len(products)),
		)
		return products, nil
	}

	logger.Warn("primary catalog location failed",
		zap.String("location", l.Primary),
		zap.Error(primaryErr),
	)

	if l.Fallback == "" {
		catalogLoadsTotal.WithLabelValues(resultFailed).Inc()
		return nil, &LoadError{Primary: l.Primary, PrimaryErr: primaryErr}
	}

	products, fallbackErr := l.fetch(ctx, l.Fallback)
	if fallbackErr != nil {
		catalogLoadsTotal.WithLabelValues(resultFailed).Inc()
		return nil, &LoadError{
			Primary:     l.Primary,
			PrimaryErr:  primaryErr,
			Fallback:    l.Fallback,
			FallbackErr: fallbackErr,
		}
	}

	catalogLoadsTotal.WithLabelValues(resultFallback).Inc()
	logger.Info("catalog loaded from fallback",
		zap.String("location", l.Fallback),
		zap.Int("products", len(products)),
	)

	return products, nil
}

func (l *Loader) fetch(ctx context.Context, location string) ([]model.Product, error) {
	data, err := l.Source.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	return Decode(location, data)
}
