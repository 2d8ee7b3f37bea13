package order

var trackingLabels = [...]string{"Order Placed", "Packed", "Shipped", "Delivered"}

var progressIndex = map[Status]int{
	StatusProcessing: 0,
	StatusPacked:     1,
	StatusShipped:    2,
	StatusDelivered:  3,
}

// TrackingFor derives the checklist from a status. A cancelled order keeps
// only "Order Placed" completed, whatever progress it had made.
func TrackingFor(status Status) []TrackingStep {
	last, ok := progressIndex[status]
	if !ok {
		last = 0
	}

	steps := make([]TrackingStep, len(trackingLabels))
	for i, label := range trackingLabels {
		steps[i] = TrackingStep{Label: label, Completed: i <= last}
	}
	return steps
}
