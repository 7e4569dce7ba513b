package possync

// Pack is the lottery pack being activated or deactivated. Callers load it
// from the catalog; this package never touches the relational store.
type Pack struct {
	ID             string
	StoreID        string
	GameCode       string
	GameName       string
	PackNumber     string
	TicketPrice    float64
	TicketsPerPack int
}

// Integration is a store's POS integration record. A store has at most
// one; a nil Integration means the store is not configured for POS export,
// which is a valid state, not an error.
type Integration struct {
	POSType        string
	ConnectionMode string
	XMLGatewayPath string
	NAXMLVersion   string
	IsActive       bool
}

// ActivationResult reports what actually happened during activation sync.
//
// Success is false only when UPC generation failed. Cache and POS export
// are retryable side channels: their outcomes are reported in RedisStored
// and PosExported, with Error describing the failed sub-step, and never
// fail the activation itself.
type ActivationResult struct {
	Success     bool   `json:"success"`
	RedisStored bool   `json:"redisStored"`
	PosExported bool   `json:"posExported"`
	TicketCount int    `json:"ticketCount,omitempty"`
	FirstUPC    string `json:"firstUpc,omitempty"`
	LastUPC     string `json:"lastUpc,omitempty"`
	ExportFile  string `json:"exportFile,omitempty"`
	Error       string `json:"error,omitempty"`
}

// DeactivationResult reports the deactivation sync outcome. Deactivation
// has no fatal step: Success is always true and the flags describe what
// was found and done.
type DeactivationResult struct {
	Success      bool   `json:"success"`
	CacheFound   bool   `json:"cacheFound"`
	CacheDeleted bool   `json:"cacheDeleted"`
	PosExported  bool   `json:"posExported"`
	ExportFile   string `json:"exportFile,omitempty"`
	Error        string `json:"error,omitempty"`
}
