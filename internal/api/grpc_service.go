package api

import (
	"context"
	"errors"
	"time"

	"auditorium/internal/domain"
	"auditorium/internal/models"
	"auditorium/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const reservationServiceName = "auditorium.v1.ReservationService"

// ReservationServer is the gRPC surface. Requests and responses are generic
// structs whose fields mirror the JSON API.
type ReservationServer interface {
	ListRooms(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetRoomEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckAvailability(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateReservation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelReservation(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func unaryHandler[Req any](method string, call func(ReservationServer, context.Context, *Req) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ReservationServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + reservationServiceName + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ReservationServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var reservationServiceDesc = grpc.ServiceDesc{
	ServiceName: reservationServiceName,
	HandlerType: (*ReservationServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("ListRooms", ReservationServer.ListRooms),
		unaryHandler("GetRoomEvents", ReservationServer.GetRoomEvents),
		unaryHandler("CheckAvailability", ReservationServer.CheckAvailability),
		unaryHandler("CreateReservation", ReservationServer.CreateReservation),
		unaryHandler("CancelReservation", ReservationServer.CancelReservation),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "auditorium/v1/reservation.proto",
}

func RegisterReservationServer(s grpc.ServiceRegistrar, srv ReservationServer) {
	s.RegisterService(&reservationServiceDesc, srv)
}

type reservationGRPC struct {
	reservations domain.ReservationService
	queries      domain.QueryService
}

func newReservationGRPC(svc Services) *reservationGRPC {
	return &reservationGRPC{reservations: svc.Reservations, queries: svc.Queries}
}

func (g *reservationGRPC) ListRooms(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	rooms, err := g.queries.ListRooms(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	list := make([]any, 0, len(rooms))
	for _, r := range rooms {
		list = append(list, map[string]any{
			"id":          r.ID,
			"name":        r.Name,
			"capacity":    r.Capacity,
			"location":    r.Location,
			"description": r.Description,
		})
	}
	return newStruct(map[string]any{"rooms": list})
}

func (g *reservationGRPC) GetRoomEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	roomID, err := intField(req, "room_id")
	if err != nil {
		return nil, err
	}
	var date *time.Time
	if raw := stringField(req, "date"); raw != "" {
		d, err := time.Parse(models.DateLayout, raw)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, "invalid date format; expected YYYY-MM-DD")
		}
		date = &d
	}

	events, err := g.queries.RoomEvents(ctx, roomID, date)
	if err != nil {
		return nil, grpcError(err)
	}
	list := make([]any, 0, len(events))
	for _, r := range events {
		list = append(list, reservationFields(r))
	}
	return newStruct(map[string]any{"events": list})
}

func (g *reservationGRPC) CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	roomID, err := intField(req, "room_id")
	if err != nil {
		return nil, err
	}
	date, err := time.Parse(models.DateLayout, stringField(req, "date"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid date format; expected YYYY-MM-DD")
	}
	start, err := models.ParseTimeOfDay(stringField(req, "start"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid start; expected HH:MM")
	}
	end, err := models.ParseTimeOfDay(stringField(req, "end"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid end; expected HH:MM")
	}

	available, err := g.queries.CheckAvailability(ctx, roomID, date, start, end)
	if err != nil {
		return nil, grpcError(err)
	}
	return newStruct(map[string]any{"available": available})
}

func (g *reservationGRPC) CreateReservation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	roomID, err := intField(req, "room_id")
	if err != nil {
		return nil, err
	}
	telegramID, err := intField(req, "telegram_id")
	if err != nil {
		return nil, err
	}

	body := createReservationRequest{
		RoomID:      roomID,
		TelegramID:  telegramID,
		Title:       stringField(req, "title"),
		Date:        stringField(req, "date"),
		Start:       stringField(req, "start"),
		End:         stringField(req, "end"),
		Description: stringField(req, "description"),
	}
	r, err := body.toReservation()
	if err != nil {
		return nil, grpcError(err)
	}
	if err := g.reservations.Create(service.WithSource(ctx, "grpc"), r); err != nil {
		return nil, grpcError(err)
	}
	return newStruct(reservationFields(r))
}

func (g *reservationGRPC) CancelReservation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := intField(req, "id")
	if err != nil {
		return nil, err
	}
	telegramID, err := intField(req, "telegram_id")
	if err != nil {
		return nil, err
	}
	r, err := g.reservations.Cancel(service.WithSource(ctx, "grpc"), id, telegramID)
	if err != nil {
		return nil, grpcError(err)
	}
	return newStruct(reservationFields(r))
}

func reservationFields(r *models.Reservation) map[string]any {
	return map[string]any{
		"id":          r.ID,
		"room_id":     r.RoomID,
		"room_name":   r.RoomName,
		"telegram_id": r.OwnerID,
		"title":       r.Title,
		"date":        r.Date.Format(models.DateLayout),
		"start":       r.Start.String(),
		"end":         r.End.String(),
		"description": r.Description,
		"status":      r.Status,
	}
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}

// intField reads a positive integer; JSON numbers arrive as doubles.
func intField(req *structpb.Struct, name string) (int64, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue <= 0 || n.NumberValue != float64(int64(n.NumberValue)) {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a positive integer", name)
	}
	return int64(n.NumberValue), nil
}

func stringField(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

// grpcError maps domain errors like statusFor does for HTTP.
func grpcError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrPermissionDenied):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, domain.ErrConflict):
		return status.Error(codes.AlreadyExists, "time slot overlaps an existing reservation")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
