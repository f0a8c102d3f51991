package models

// PredictRequest binds GET /api/stock/predict/:symbol.
type PredictRequest struct {
	Symbol string `param:"symbol" validate:"required,max=15"`
	Days   int    `query:"days" default:"30" validate:"min=1,max=365"`
}

// SymbolRequest binds routes that only take a symbol.
type SymbolRequest struct {
	Symbol string `param:"symbol" validate:"required,max=15"`
}

// PretrainRequest is the optional body of POST /api/stock/pretrain_all.
// An empty list means the watchlist.
type PretrainRequest struct {
	Symbols []string `json:"symbols" validate:"max=500,dive,max=15"`
}
