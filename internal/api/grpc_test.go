package api

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"auditorium/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func dialBufconn(t *testing.T, cfg config.APIConfig, svc Services) *grpc.ClientConn {
	t.Helper()
	logger := zerolog.New(io.Discard)
	srv, err := newGRPCServer(&cfg, svc, &logger)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func method(name string) string {
	return "/" + reservationServiceName + "/" + name
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

func TestGRPC_Reservations(t *testing.T) {
	env := newTestEnv(t)
	conn := dialBufconn(t, config.APIConfig{}, env.svc)
	ctx := context.Background()

	rooms := &structpb.Struct{}
	require.NoError(t, conn.Invoke(ctx, method("ListRooms"), &emptypb.Empty{}, rooms))
	list := rooms.GetFields()["rooms"].GetListValue().GetValues()
	require.Len(t, list, 1)
	assert.Equal(t, "Auditorio Central", list[0].GetStructValue().GetFields()["name"].GetStringValue())

	create := map[string]any{
		"room_id":     float64(env.room.ID),
		"telegram_id": float64(10),
		"title":       "Charla",
		"date":        "2025-06-01",
		"start":       "14:00",
		"end":         "15:00",
	}
	created := &structpb.Struct{}
	require.NoError(t, conn.Invoke(ctx, method("CreateReservation"), mustStruct(t, create), created))
	id := created.GetFields()["id"].GetNumberValue()
	assert.NotZero(t, id)
	assert.Equal(t, "14:00", created.GetFields()["start"].GetStringValue())

	create["start"], create["end"] = "14:30", "15:30"
	err := conn.Invoke(ctx, method("CreateReservation"), mustStruct(t, create), &structpb.Struct{})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	create["end"] = "14:00"
	err = conn.Invoke(ctx, method("CreateReservation"), mustStruct(t, create), &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	avail := &structpb.Struct{}
	require.NoError(t, conn.Invoke(ctx, method("CheckAvailability"), mustStruct(t, map[string]any{
		"room_id": float64(env.room.ID), "date": "2025-06-01", "start": "15:00", "end": "16:00",
	}), avail))
	assert.True(t, avail.GetFields()["available"].GetBoolValue())

	events := &structpb.Struct{}
	require.NoError(t, conn.Invoke(ctx, method("GetRoomEvents"), mustStruct(t, map[string]any{
		"room_id": float64(env.room.ID), "date": "2025-06-01",
	}), events))
	assert.Len(t, events.GetFields()["events"].GetListValue().GetValues(), 1)

	err = conn.Invoke(ctx, method("GetRoomEvents"), mustStruct(t, map[string]any{"room_id": float64(42)}), &structpb.Struct{})
	assert.Equal(t, codes.NotFound, status.Code(err))

	err = conn.Invoke(ctx, method("GetRoomEvents"), mustStruct(t, map[string]any{"room_id": 1.5}), &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	cancel := map[string]any{"id": id, "telegram_id": float64(20)}
	err = conn.Invoke(ctx, method("CancelReservation"), mustStruct(t, cancel), &structpb.Struct{})
	assert.Equal(t, codes.NotFound, status.Code(err))

	cancel["telegram_id"] = float64(10)
	cancelled := &structpb.Struct{}
	require.NoError(t, conn.Invoke(ctx, method("CancelReservation"), mustStruct(t, cancel), cancelled))
	assert.Equal(t, "cancelled", cancelled.GetFields()["status"].GetStringValue())
}

func TestGRPC_Auth(t *testing.T) {
	env := newTestEnv(t)
	cfg := config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled: true,
			APIKeys: []config.APIClientKey{
				{Key: "reader", Extra: "plain", Permissions: []string{PermReadRooms}},
			},
		},
	}
	conn := dialBufconn(t, cfg, env.svc)

	err := conn.Invoke(context.Background(), method("ListRooms"), &emptypb.Empty{}, &structpb.Struct{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := metadata.AppendToOutgoingContext(context.Background(), apiKeyHeaderDefault, "reader", apiExtraHeaderDefault, "plain")
	require.NoError(t, conn.Invoke(ctx, method("ListRooms"), &emptypb.Empty{}, &structpb.Struct{}))

	err = conn.Invoke(ctx, method("GetRoomEvents"), mustStruct(t, map[string]any{"room_id": float64(1)}), &structpb.Struct{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestRequiredPermission(t *testing.T) {
	assert.Equal(t, PermReadRooms, requiredPermission(method("ListRooms")))
	assert.Equal(t, PermReadEvents, requiredPermission(method("GetRoomEvents")))
	assert.Equal(t, PermReadEvents, requiredPermission(method("CheckAvailability")))
	assert.Equal(t, PermWriteEvents, requiredPermission(method("CreateReservation")))
	assert.Equal(t, PermWriteEvents, requiredPermission(method("CancelReservation")))
	assert.Equal(t, "", requiredPermission("/grpc.health.v1.Health/Check"))
}

func TestChainUnaryInterceptors(t *testing.T) {
	var order []string
	mk := func(name string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			order = append(order, name)
			return handler(ctx, req)
		}
	}
	chained := ChainUnaryInterceptors(mk("first"), mk("second"))
	resp, err := chained(context.Background(), "req", &grpc.UnaryServerInfo{}, func(_ context.Context, req any) (any, error) {
		order = append(order, "handler")
		return req, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "req", resp)
	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	logger := zerolog.New(io.Discard)
	interceptor := RecoveryUnaryInterceptor(&logger)
	info := &grpc.UnaryServerInfo{FullMethod: method("ListRooms")}

	_, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))

	_, err = interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, errors.New("plain")
	})
	assert.EqualError(t, err, "plain")
}

func TestBuildTLSConfig(t *testing.T) {
	_, err := buildTLSConfig(config.APITLSConfig{Enabled: true})
	assert.ErrorContains(t, err, "cert_file/key_file not set")

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a pem"), 0o600))
	_, err = buildTLSConfig(config.APITLSConfig{Enabled: true, CertFile: bad, KeyFile: bad})
	assert.ErrorContains(t, err, "load grpc tls keypair")
}

func TestRateLimiter(t *testing.T) {
	off := newRateLimiter(config.APIRateLimitConfig{})
	for i := 0; i < 10; i++ {
		assert.True(t, off.allow("k"))
	}

	on := newRateLimiter(config.APIRateLimitConfig{RPS: 0.001, Burst: 2})
	assert.True(t, on.allow("k"))
	assert.True(t, on.allow("k"))
	assert.False(t, on.allow("k"))
	assert.True(t, on.allow("other"))
}
