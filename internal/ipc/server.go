package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"carousel/internal/daemon"
	"carousel/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Carousel", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("run start requested")
	if err := s.daemon.StartRun(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "capture run started"
	s.log().Info("capture run started via IPC",
		logging.String(logging.FieldEventType, "run_start"))
	return nil
}

func (s *service) StopMonitoring(_ StopMonitoringRequest, resp *StopMonitoringResponse) error {
	s.log().Debug("stop monitoring requested")
	if err := s.daemon.StopMonitoring(s.ctx); err != nil {
		resp.Stopped = false
		resp.Message = err.Error()
		return nil
	}
	resp.Stopped = true
	resp.Message = "monitoring stopped"
	s.log().Info("monitoring stopped via IPC",
		logging.String(logging.FieldEventType, "monitoring_stop"))
	return nil
}

func (s *service) Reset(_ ResetRequest, resp *ResetResponse) error {
	s.log().Debug("run reset requested")
	if err := s.daemon.ResetRun(s.ctx); err != nil {
		resp.Reset = false
		resp.Message = err.Error()
		return nil
	}
	resp.Reset = true
	resp.Message = "run reset"
	s.log().Info("run reset via IPC",
		logging.String(logging.FieldEventType, "run_reset"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.RunID = status.Pipeline.Run.RunID
	resp.StartedAt = status.Pipeline.Run.StartedAt
	resp.Stage = status.Pipeline.Run.Stage
	resp.StageStatus = string(status.Pipeline.Run.StageStatus)
	resp.TrackedJobTitle = status.Pipeline.Run.TrackedJobTitle
	resp.DownloadTriggered = status.Pipeline.Run.DownloadTriggered
	resp.Message = status.Pipeline.Run.Message
	resp.Tracking = status.Pipeline.Tracking
	resp.Watching = status.Pipeline.Watching
	resp.MonitoringActive = status.Pipeline.MonitoringActive
	resp.MonitoringStartedAt = status.Pipeline.MonitoringStartedAt
	resp.CompletionPhaseActive = status.Pipeline.CompletionPhaseActive
	resp.DevicePresent = status.DevicePresent
	resp.RecoveryDB = status.RecoveryDB
	resp.LockPath = status.LockFilePath
	return nil
}

func (s *service) Events(req EventsRequest, resp *EventsResponse) error {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	resp.Events = s.daemon.Events(limit)
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
