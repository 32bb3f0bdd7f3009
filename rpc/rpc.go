package rpc

import (
	"net"
	"net/rpc"
	"time"

	"github.com/greatescape/gameserver/logger"
	"github.com/greatescape/gameserver/room"
	"github.com/greatescape/gameserver/services"
)

// Server manages the RPC listener for the admin surface.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer creates a new RPC server.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Check if the error is due to the listener being closed.
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// AdminService exposes operational queries over net/rpc.
type AdminService struct {
	registry      *room.Registry
	recordService *services.RecordService
}

func NewAdminService(registry *room.Registry, recordService *services.RecordService) *AdminService {
	return &AdminService{registry: registry, recordService: recordService}
}

type ServerStatsArgs struct{}

type ServerStatsReply struct {
	ActiveRooms int
	Data        map[string]interface{}
}

// GetServerStats follows the net/rpc signature: exported method,
// exported argument types, pointer reply, error return.
func (as *AdminService) GetServerStats(args *ServerStatsArgs, reply *ServerStatsReply) error {
	data, err := as.recordService.GetStatsWithRecent(24 * time.Hour)
	if err != nil {
		return err
	}
	reply.ActiveRooms = as.registry.Count()
	reply.Data = data
	return nil
}
