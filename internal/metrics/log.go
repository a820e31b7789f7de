package metrics

import "github.com/joss/obsreport/internal/logging"

var log = logging.New("metrics")
