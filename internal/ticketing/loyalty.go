package ticketing

// PointsPerUnit is the spend that earns one loyalty point.
const PointsPerUnit = 100

// AttendanceBonusPoints is awarded to the purchaser on check-in.
const AttendanceBonusPoints = 10

// PurchasePoints returns floor(total / 100).
func PurchasePoints(total int64) int64 {
	if total <= 0 {
		return 0
	}
	return total / PointsPerUnit
}
