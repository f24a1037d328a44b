// Package transform converts raw table snapshots for one batch into the
// conformed star schema: six dimension tables and the sales-order fact table.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fenorlabs/totesys-etl/pkg/artifact"
	"github.com/fenorlabs/totesys-etl/pkg/blob"
	"github.com/fenorlabs/totesys-etl/pkg/etlerr"
	"github.com/fenorlabs/totesys-etl/pkg/metrics"
	"github.com/fenorlabs/totesys-etl/pkg/retry"
	"github.com/fenorlabs/totesys-etl/pkg/table"
)

type Config struct {
	Logger *slog.Logger
	Store  blob.Store
	Retry  retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// WriteAck is the acknowledgement for one target-table artifact write.
type WriteAck struct {
	Target string      `json:"target"`
	Key    string      `json:"key,omitempty"`
	Rows   int         `json:"rows"`
	Code   etlerr.Code `json:"code,omitempty"`
	Err    error       `json:"-"`
}

// BatchStatus is the all-or-nothing transform result for one batch: success
// only if every per-table write acknowledged, otherwise the distinct set of
// failure codes observed.
type BatchStatus struct {
	BatchID string       `json:"batch_id"`
	Acks    []WriteAck   `json:"acks"`
	Joins   []JoinReport `json:"joins,omitempty"`
}

func (s *BatchStatus) Success() bool {
	for _, ack := range s.Acks {
		if ack.Err != nil {
			return false
		}
	}
	return true
}

// FailureCodes returns the distinct failure codes across acks, in first-seen
// order.
func (s *BatchStatus) FailureCodes() []etlerr.Code {
	seen := make(map[etlerr.Code]bool)
	var codes []etlerr.Code
	for _, ack := range s.Acks {
		if ack.Err == nil || seen[ack.Code] {
			continue
		}
		seen[ack.Code] = true
		codes = append(codes, ack.Code)
	}
	return codes
}

// Engine runs the transform stage for one batch against an immutable set of
// raw snapshots. Builders are deterministic; re-running the same batch yields
// byte-identical artifacts.
type Engine struct {
	log *slog.Logger
	cfg Config
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{log: cfg.Logger, cfg: cfg}, nil
}

// Run reads the raw snapshots the builders need, builds every target table
// sequentially, and writes one parquet artifact per target. Per-target
// failures are isolated into their acks; Run itself only errors when the
// status cannot be produced at all.
func (e *Engine) Run(ctx context.Context, batchID string) *BatchStatus {
	status := &BatchStatus{BatchID: batchID}

	salesOrders, soErr := loadInput(ctx, e, batchID, "sales_order", ParseSalesOrders)
	designs, designErr := loadInput(ctx, e, batchID, "design", ParseDesigns)
	addresses, addrErr := loadInput(ctx, e, batchID, "address", ParseAddresses)
	counterparties, cpErr := loadInput(ctx, e, batchID, "counterparty", ParseCounterparties)
	staff, staffErr := loadInput(ctx, e, batchID, "staff", ParseStaff)
	departments, deptErr := loadInput(ctx, e, batchID, "department", ParseDepartments)
	currencies, curErr := loadInput(ctx, e, batchID, "currency", ParseCurrencies)

	locations := BuildLocationDimension(addresses)

	writeTarget(ctx, e, status, TargetDimDate, soErr, func() ([]DateRow, error) {
		return BuildDateDimension(salesOrders)
	})
	writeTarget(ctx, e, status, TargetDimDesign, designErr, func() ([]DesignRow, error) {
		return BuildDesignDimension(designs), nil
	})
	writeTarget(ctx, e, status, TargetDimLocation, addrErr, func() ([]LocationRow, error) {
		return locations, nil
	})
	writeTarget(ctx, e, status, TargetDimCounterparty, errors.Join(cpErr, addrErr), func() ([]CounterpartyRow, error) {
		rows, report := BuildCounterpartyDimension(counterparties, locations)
		status.Joins = append(status.Joins, report)
		return rows, nil
	})
	writeTarget(ctx, e, status, TargetDimStaff, errors.Join(staffErr, deptErr), func() ([]StaffRow, error) {
		rows, report := BuildStaffDimension(staff, departments)
		status.Joins = append(status.Joins, report)
		return rows, nil
	})
	writeTarget(ctx, e, status, TargetDimCurrency, curErr, func() ([]CurrencyRow, error) {
		return BuildCurrencyDimension(currencies), nil
	})
	writeTarget(ctx, e, status, TargetFactSalesOrder, soErr, func() ([]FactSalesOrderRow, error) {
		return BuildFactSalesOrder(salesOrders), nil
	})

	for _, report := range status.Joins {
		if report.Dropped > 0 {
			e.log.Warn("transform: join dropped rows",
				"dimension", report.Dimension, "dropped", report.Dropped, "keys", report.DroppedKeys)
			metrics.JoinRowsDropped.WithLabelValues(report.Dimension).Add(float64(report.Dropped))
		}
	}

	e.log.Info("transform: batch complete",
		"batch_id", batchID, "success", status.Success(), "targets", len(status.Acks))
	return status
}

// loadInput reads one raw snapshot for the batch and parses it into typed
// rows. The declared source schema supplies the column set for decoding.
func loadInput[T any](ctx context.Context, e *Engine, batchID, tableName string, parse func(*table.Snapshot) ([]T, error)) ([]T, error) {
	columns, err := SourceColumns(tableName)
	if err != nil {
		return nil, err
	}
	body, err := e.cfg.Store.Get(ctx, blob.RawKey(tableName, batchID))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s snapshot for batch %s: %w", tableName, batchID, err)
	}
	snap, err := table.DecodeJSONL(tableName, batchID, columns, body)
	if err != nil {
		return nil, etlerr.New(etlerr.CodeDataShape,
			fmt.Errorf("failed to decode %s snapshot for batch %s: %w", tableName, batchID, err))
	}
	return parse(snap)
}

// writeTarget builds one target table and persists its artifact, appending
// the acknowledgement to the batch status.
func writeTarget[T any](ctx context.Context, e *Engine, status *BatchStatus, target string, inputErr error, build func() ([]T, error)) {
	if inputErr != nil {
		code := etlerr.Classify(inputErr)
		e.log.Warn("transform: input unavailable", "target", target, "code", code, "error", inputErr)
		metrics.TableWriteTotal.WithLabelValues(target, "error").Inc()
		status.Acks = append(status.Acks, WriteAck{Target: target, Code: code, Err: inputErr})
		return
	}

	rows, err := build()
	if err != nil {
		code := etlerr.Classify(err)
		e.log.Warn("transform: build failed", "target", target, "code", code, "error", err)
		metrics.TableWriteTotal.WithLabelValues(target, "error").Inc()
		status.Acks = append(status.Acks, WriteAck{Target: target, Code: code, Err: err})
		return
	}

	body, err := artifact.Encode(rows)
	if err != nil {
		err = etlerr.New(etlerr.CodeDataShape, err)
		metrics.TableWriteTotal.WithLabelValues(target, "error").Inc()
		status.Acks = append(status.Acks, WriteAck{Target: target, Code: etlerr.CodeDataShape, Err: err})
		return
	}

	key := blob.ArtifactKey(target, status.BatchID)
	err = retry.Do(ctx, e.cfg.Retry, func() error {
		return e.cfg.Store.Put(ctx, key, body)
	})
	if err != nil {
		code := etlerr.Classify(err)
		e.log.Warn("transform: artifact write failed", "target", target, "key", key, "code", code, "error", err)
		metrics.TableWriteTotal.WithLabelValues(target, "error").Inc()
		status.Acks = append(status.Acks, WriteAck{Target: target, Code: code, Err: err})
		return
	}

	e.log.Info("transform: wrote artifact", "target", target, "rows", len(rows), "key", key)
	metrics.TableWriteTotal.WithLabelValues(target, "ok").Inc()
	status.Acks = append(status.Acks, WriteAck{Target: target, Key: key, Rows: len(rows)})
}
