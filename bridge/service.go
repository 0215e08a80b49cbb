// Package bridge is the request boundary of the print bridge: it validates
// print requests, runs them through rasterizing and encoding, and delivers
// them to the printer.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AlexStarov/escpos-print-bridge/config"
	imgInternal "github.com/AlexStarov/escpos-print-bridge/image"
	"github.com/AlexStarov/escpos-print-bridge/log"
	"github.com/AlexStarov/escpos-print-bridge/printer"
)

type Service struct {
	Converter *imgInternal.Converter
	Encoder   *printer.Encoder
	Dialer    printer.Dialer

	// Timeout bounds each copy
	Timeout   time.Duration
	MaxCopies int
	MaxPixels int

	Logger *slog.Logger

	// one job at a time on the physical printer
	mu sync.Mutex
}

// NewService wires a Service from the loaded configuration.
func NewService(cfg config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = log.Nop()
	}

	mode, err := imgInternal.ParseMode(cfg.Print.RasterMode)
	if err != nil {
		return nil, err
	}
	filter, err := imgInternal.ParseFilter(cfg.Print.ResizeFilter)
	if err != nil {
		return nil, err
	}
	charset, err := printer.ParseCharset(cfg.Printer.Charset)
	if err != nil {
		return nil, err
	}
	dialer, err := NewDialer(cfg.Printer, logger.With("src", "printer"))
	if err != nil {
		return nil, err
	}

	return &Service{
		Converter: &imgInternal.Converter{
			MaxWidth:  cfg.Print.MaxWidth,
			Threshold: uint8(cfg.Print.Threshold),
			Mode:      mode,
			Filter:    filter,
		},
		Encoder:   &printer.Encoder{FeedLines: byte(cfg.Print.FeedLines), Charset: charset},
		Dialer:    dialer,
		Timeout:   cfg.Printer.Timeout,
		MaxCopies: cfg.Print.MaxCopies,
		MaxPixels: cfg.Print.MaxPixels,
		Logger:    logger,
	}, nil
}

// Print validates req, builds the command buffer and sends it once per copy.
// The returned error is a *ValidationError, *image.InvalidImageError,
// *printer.TransportError or *InternalError.
func (s *Service) Print(ctx context.Context, req Request) error {
	jobID := uuid.NewString()
	logger := s.logger().With("job_id", jobID)

	copies, imageData, err := req.validate(s.MaxCopies)
	if err != nil {
		logger.Info("request rejected", "error", err)
		return err
	}

	job := printer.Job{ID: jobID, Title: req.Title, Copies: copies}
	if imageData != nil {
		raster, err := s.rasterize(imageData)
		if err != nil {
			logger.Warn("image rejected", "error", err)
			return s.classify(jobID, err)
		}
		logger.Debug("rasterized", "raster", raster.String(), "black_dots", raster.BlackDots())
		job.Payload = printer.RasterPayload{Raster: raster}
	} else {
		job.Payload = printer.TextPayload(req.Lines)
	}

	buf, err := s.Encoder.Encode(job)
	if err != nil {
		return s.classify(jobID, err)
	}

	logger.Info("printing", "title", job.Title, "payload", req.payloadKind(), "copies", copies, "bytes", len(buf))

	s.mu.Lock()
	defer s.mu.Unlock()

	err = printer.Deliver(ctx, s.Dialer, buf, copies, printer.DeliverOptions{
		Timeout: s.Timeout,
		Title:   job.Title,
		Logger:  logger,
	})
	if err != nil {
		return s.classify(jobID, err)
	}
	logger.Info("printed", "copies", copies)
	return nil
}

func (s *Service) rasterize(data []byte) (*imgInternal.Raster, error) {
	img, err := imgInternal.Decode(data, s.MaxPixels)
	if err != nil {
		return nil, err
	}
	return s.Converter.ToRaster(img)
}

// classify passes the typed stage errors through and wraps everything else.
func (s *Service) classify(jobID string, err error) error {
	var (
		ve *ValidationError
		ie *imgInternal.InvalidImageError
		te *printer.TransportError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &ie), errors.As(err, &te):
		return err
	}
	s.logger().Error("internal error", "job_id", jobID, "error", err)
	return &InternalError{JobID: jobID, Err: fmt.Errorf("job %s: %w", jobID, err)}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return log.Nop()
	}
	return s.Logger
}
