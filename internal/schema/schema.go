// Package schema names the measurements, tags and fields shared by the write and read paths.
package schema

const (
	DefaultTestTitleTag = "testTitle"

	MeasurementAggregated = "jmeter"
	MeasurementErrors     = "errors"
	MeasurementEvents     = "events"
)

// Tags.
const (
	TagApplication     = "application"
	TagTransaction     = "transaction"
	TagStatus          = "statut"
	TagNodeName        = "nodeName"
	TagResponseCode    = "responseCode"
	TagResponseMessage = "responseMessage"
	TagEventType       = "type"
	TagPage            = "page"
	TagSummaryType     = "summaryType"
	TagContentType     = "contentType"
)

// Tag values.
const (
	TransactionAll = "all"

	StatusAll = "all"
	StatusOK  = "ok"
	StatusKO  = "ko"

	// ConcurrencyTransactionV1 and ConcurrencyTransactionV2 tag the concurrency series of each engine generation.
	ConcurrencyTransactionV1 = "internal"
	ConcurrencyTransactionV2 = "default"

	EventStarted  = "started"
	EventFinished = "finished"

	SummaryTypePage = "pageSummary"
)

// Aggregated fields.
const (
	FieldCount      = "count"
	FieldAvg        = "avg"
	FieldMin        = "min"
	FieldMax        = "max"
	FieldPct50      = "pct50"
	FieldPct75      = "pct75"
	FieldPct90      = "pct90"
	FieldPct95      = "pct95"
	FieldPct99      = "pct99"
	FieldReceived   = "rb"
	FieldSent       = "sb"
	FieldHit        = "hit"
	FieldCountError = "countError"
)

// Concurrency fields.
const (
	FieldMinActiveThreads  = "minAT"
	FieldMaxActiveThreads  = "maxAT"
	FieldMeanActiveThreads = "meanAT"
	FieldStartedThreads    = "startedT"
	FieldEndedThreads      = "endedT"
)

const FieldEventText = "text"

// Percentiles lists the percentile levels stored on aggregated points together with their fields.
var Percentiles = []struct {
	Level float64
	Field string
}{
	{50, FieldPct50},
	{75, FieldPct75},
	{90, FieldPct90},
	{95, FieldPct95},
	{99, FieldPct99},
}

// Frontend measurements.
const (
	FirstContentfulPaint      = "firstContentfulPaint"
	LargestContentfulPaint    = "largestContentfulPaint"
	CumulativeLayoutShift     = "cumulativeLayoutShift"
	TotalBlockingTime         = "totalBlockingTime"
	TimeToFirstByte           = "timeToFirstByte"
	InteractionToNextPaint    = "interactionToNextPaint"
	FirstPaint                = "firstPaint"
	PageLoadTime              = "pageLoadTime"
	DomContentLoadedTime      = "domContentLoadedTime"
	DomInteractiveTime        = "domInteractiveTime"
	FullyLoaded               = "fullyLoaded"
	BackEndTime               = "backEndTime"
	FrontEndTime              = "frontEndTime"
	ServerResponseTime        = "serverResponseTime"
	CPULongTasks              = "cpuLongTasks"
	CPULongTasksTotalDuration = "cpuLongTasksTotalDuration"
	CPUScripting              = "cpuScripting"
	CPULayout                 = "cpuLayout"
	CPUPainting               = "cpuPainting"
	TransferSize              = "transferSize"

	FieldMedian = "median"
)

var (
	WebVitals     = []string{FirstContentfulPaint, LargestContentfulPaint, CumulativeLayoutShift, TotalBlockingTime, TimeToFirstByte, InteractionToNextPaint}
	PageTimings   = []string{FirstPaint, PageLoadTime, DomContentLoadedTime, DomInteractiveTime, FullyLoaded, BackEndTime, FrontEndTime, ServerResponseTime}
	CPUMetrics    = []string{CPULongTasks, CPULongTasksTotalDuration, CPUScripting, CPULayout, CPUPainting}
	ContentTypes  = []string{"html", "css", "javascript", "image", "font", "json", "total"}
	OverviewPages = []string{FirstContentfulPaint, LargestContentfulPaint, CumulativeLayoutShift, TotalBlockingTime, PageLoadTime, FullyLoaded}
)

// Measurements lists every measurement written by the insertion pipeline.
var Measurements = []string{MeasurementAggregated, MeasurementErrors, MeasurementEvents}
