package enums

// RecommendationSource records who produced a slot recommendation list.
type RecommendationSource string

const (
	RecommendationSourceOracle   RecommendationSource = "oracle"
	RecommendationSourceFallback RecommendationSource = "fallback"
)

// SlotAnalysisCode classifies why no slot could be offered.
type SlotAnalysisCode string

const (
	SlotAnalysisNoCapableCrews   SlotAnalysisCode = "no_capable_crews"
	SlotAnalysisNoCrewsServeArea SlotAnalysisCode = "no_crews_serve_area"
	SlotAnalysisAreaCrewsFull    SlotAnalysisCode = "area_crews_full"
)
