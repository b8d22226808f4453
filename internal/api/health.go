package api

// Health answers GET /health: a cheap liveness check of the two components
// that can actually fail independently of the process itself.
func (s *Service) Health() HealthResponse {
	cache := "ok"
	if s.Store == nil {
		cache = "unavailable"
	}

	analyzer := "ok"
	if s.Extractor == nil {
		analyzer = "unavailable"
	}

	return HealthResponse{
		Status:  "ok",
		Version: Version,
		Components: map[string]string{
			"cache":    cache,
			"analyzer": analyzer,
		},
	}
}
