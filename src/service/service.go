package service

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/stablemesh/stablemesh/src/common"
	"github.com/stablemesh/stablemesh/src/node"
)

// Service exposes the node's section state over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the DefaultServerMux of
// the http package. It is possible that another server in the same process is
// simultaneously using the DefaultServerMux. In which case, the handlers will
// be accessible from both servers. This is useful when the node is embedded
// and expected to use the same endpoint (address:port) as the application's
// API.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering API handlers")
	http.HandleFunc("/stats", s.makeHandler(s.GetStats))
	http.HandleFunc("/members", s.makeHandler(s.GetMembers))
	http.HandleFunc("/cohort", s.makeHandler(s.GetCohort))
	http.HandleFunc("/sap", s.makeHandler(s.GetSap))
	http.HandleFunc("/wallet", s.makeHandler(s.GetWallet))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Serve calls ListenAndServe. This is a blocking call. It is not necessary to
// call Serve when the node is embedded and another server has already been
// started with the DefaultServerMux and the same address:port combination.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving section API")

	// Use the DefaultServerMux
	err := http.ListenAndServe(s.bindAddress, nil)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.node.GetStats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetMembers returns the confirmed members of the section.
func (s *Service) GetMembers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(s.node.GetMembers())
}

// GetCohort returns the sitting elder cohort.
func (s *Service) GetCohort(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(s.node.GetCohort())
}

// GetSap returns the current section authority proof.
func (s *Service) GetSap(w http.ResponseWriter, r *http.Request) {
	sap, err := s.node.GetLastSap()
	if err != nil {
		s.logger.WithError(err).Error("Retrieving current Sap")

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(sap)
}

type walletInfo struct {
	EscrowKey string            `json:"escrow_key"`
	Balance   uint64            `json:"balance"`
	Settled   bool              `json:"settled"`
	Work      map[string]uint64 `json:"work"`
}

// GetWallet returns the section wallet's escrow state.
func (s *Service) GetWallet(w http.ResponseWriter, r *http.Request) {
	m := s.node.GetWallet()
	if m == nil {
		http.Error(w, "no section wallet", http.StatusInternalServerError)
		return
	}

	info := walletInfo{
		EscrowKey: common.EncodeToString(m.EscrowKey()),
		Balance:   m.Balance(),
		Settled:   m.Settled(),
		Work:      make(map[string]uint64),
	}
	for name, counter := range m.Work() {
		info.Work[name.String()] = counter
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(info)
}
