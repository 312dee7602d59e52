package shared

// HR module permissions declared for RBAC.
const (
	PermAttendanceView   = "EMPLOYEE.ATTENDANCE.VIEW"
	PermAttendanceExport = "EMPLOYEE.ATTENDANCE.EXPORT"
	PermLeaveApprove     = "LEAVE.APPROVE"
	PermReportView       = "REPORT.VIEW"
	PermReportExport     = "REPORT.EXPORT"
	PermDashboardView    = "DASHBOARD.VIEW"
)

// HRScopes lists all permissions related to HR operations.
func HRScopes() []string {
	return []string{
		PermAttendanceView,
		PermAttendanceExport,
		PermLeaveApprove,
		PermReportView,
		PermReportExport,
		PermDashboardView,
	}
}
