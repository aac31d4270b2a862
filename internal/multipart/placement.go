package multipart

import (
	"context"
	"errors"
	"fmt"

	"github.com/annel0/mmo-multipart/internal/logging"
	"github.com/annel0/mmo-multipart/internal/observability"
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PlaceRequest: запрос установки части в клетку
type PlaceRequest struct {
	Pos   vec.Vec3
	Face  vec.Face
	Hit   vec.Vec3Float
	Kind  PartKind
	State State
}

// Placement проверяет и выполняет установку одной части, переводя клетку
// в многосоставный вид при необходимости
type Placement struct {
	cells  CellAccess
	conv   *ConversionService
	tracer trace.Tracer
}

// NewPlacement создаёт конвейер установки
func NewPlacement(cells CellAccess, conv *ConversionService) *Placement {
	return &Placement{
		cells:  cells,
		conv:   conv,
		tracer: otel.Tracer("github.com/annel0/mmo-multipart/internal/multipart"),
	}
}

// Place устанавливает часть и возвращает её идентификатор.
// Ошибка означает отказ, клетка при этом не меняется.
func (pl *Placement) Place(ctx context.Context, req PlaceRequest) (PartID, error) {
	_, span := pl.tracer.Start(ctx, "multipart.Place", trace.WithAttributes(
		attribute.String("part.kind", string(req.Kind)),
		attribute.String("cell.pos", req.Pos.String()),
		attribute.String("face", req.Face.String()),
	))
	defer span.End()

	id, err := pl.place(req)
	result := "ok"
	if err != nil {
		result = placementResult(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		if errors.Is(err, ErrInvariant) {
			logging.Error("❌ Установка %s в %s: %v", req.Kind, req.Pos, err)
		}
	} else {
		span.SetAttributes(attribute.String("part.id", id.String()))
	}
	observability.PlacementsTotal.WithLabelValues(string(req.Kind), result).Inc()
	return id, err
}

func (pl *Placement) place(req PlaceRequest) (PartID, error) {
	opts, ok := KindOptionsOf(req.Kind)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownKind, req.Kind)
	}
	if !opts.Placeable {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrNotPlaceable, req.Kind)
	}
	if !req.Face.Valid() {
		return uuid.Nil, fmt.Errorf("%w: недопустимая грань %d", ErrInvariant, req.Face)
	}

	part, err := NewPart(req.Kind)
	if err != nil {
		return uuid.Nil, err
	}
	if len(req.State) > 0 {
		if err := part.ReadState(req.State); err != nil {
			return uuid.Nil, fmt.Errorf("ошибка начального состояния %s: %w", req.Kind, err)
		}
	}
	if o, ok := part.(Orientable); ok {
		o.Orient(req.Face, req.Hit)
	}

	cell := pl.cells.Cell(req.Pos)
	switch cell.Kind {
	case CellEmpty:
		_, id, err := pl.conv.CreateWith(req.Pos, part)
		return id, err
	case CellSingle:
		_, id, err := pl.conv.ConvertAndAdd(req.Pos, part)
		return id, err
	default:
		c, err := pl.conv.ContainerAt(req.Pos)
		if err != nil {
			return uuid.Nil, err
		}
		return pl.conv.AddTo(c, part)
	}
}

func placementResult(err error) string {
	switch {
	case errors.Is(err, ErrOccluded):
		return "occluded"
	case errors.Is(err, ErrSlotOccupied):
		return "slot_occupied"
	case errors.Is(err, ErrNotWrappable):
		return "not_wrappable"
	case errors.Is(err, ErrHostRejected):
		return "host_rejected"
	case errors.Is(err, ErrUnknownKind), errors.Is(err, ErrNotPlaceable):
		return "bad_kind"
	case errors.Is(err, ErrInvariant):
		return "invariant"
	default:
		return "error"
	}
}
