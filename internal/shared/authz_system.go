package shared

// System maintenance permissions (backups, database upkeep, biometric devices).
const (
	PermBackupCreate     = "SYSTEM.BACKUP.CREATE"
	PermBackupRestore    = "SYSTEM.BACKUP.RESTORE"
	PermDatabaseMaintain = "SYSTEM.DATABASE.MAINTAIN"
	PermDeviceView       = "DEVICE.VIEW"
	PermDeviceSync       = "DEVICE.SYNC"
)

// SystemScopes lists all permissions related to system maintenance.
func SystemScopes() []string {
	return []string{
		PermBackupCreate,
		PermBackupRestore,
		PermDatabaseMaintain,
		PermDeviceView,
		PermDeviceSync,
	}
}
