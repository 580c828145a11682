package httpserver

import "net/http"

// Routes groups handlers.
type Routes struct {
	Entry                http.HandlerFunc
	Exit                 http.HandlerFunc
	AutoOpen             http.HandlerFunc
	GateOpen             http.HandlerFunc
	RegistrationComplete http.HandlerFunc
	RegistrationCheck    http.HandlerFunc
	RechargeComplete     http.HandlerFunc
	RechargeRequest      http.HandlerFunc
	Sensors              http.HandlerFunc
	Spaces               http.HandlerFunc
	AvailableSpaces      http.HandlerFunc
	SessionHistory       http.HandlerFunc
	RechargeHistory      http.HandlerFunc
	AccountByPlate       http.HandlerFunc
	DailyStats           http.HandlerFunc
	SystemStatus         http.HandlerFunc
	Receipts             http.HandlerFunc
	Health               http.HandlerFunc
	Metrics              http.Handler
	Devices              http.Handler
}

// NewRouter registers endpoints.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()
	post := map[string]http.HandlerFunc{
		"/api/entry":                  routes.Entry,
		"/api/exit":                   routes.Exit,
		"/api/gate/auto-open":         routes.AutoOpen,
		"/api/gate/open":              routes.GateOpen,
		"/api/registrations/complete": routes.RegistrationComplete,
		"/api/recharges/complete":     routes.RechargeComplete,
		"/api/recharges/request":      routes.RechargeRequest,
		"/api/sensors":                routes.Sensors,
	}
	get := map[string]http.HandlerFunc{
		"/api/registrations/{token}": routes.RegistrationCheck,
		"/api/spaces":                routes.Spaces,
		"/api/spaces/available":      routes.AvailableSpaces,
		"/api/sessions/history":      routes.SessionHistory,
		"/api/recharges/history":     routes.RechargeHistory,
		"/api/accounts/by-plate":     routes.AccountByPlate,
		"/api/stats/daily":           routes.DailyStats,
		"/api/system/status":         routes.SystemStatus,
		"/api/receipts":              routes.Receipts,
		"/health":                    routes.Health,
	}
	for path, handler := range post {
		if handler != nil {
			mux.Handle(path, method(http.MethodPost, handler))
		}
	}
	for path, handler := range get {
		if handler != nil {
			mux.Handle(path, method(http.MethodGet, handler))
		}
	}
	if routes.Metrics != nil {
		mux.Handle("/metrics", method(http.MethodGet, routes.Metrics.ServeHTTP))
	}
	if routes.Devices != nil {
		mux.Handle("/devices/ws", routes.Devices)
	}
	return mux
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}
