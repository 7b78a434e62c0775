package station

import (
	"chargepoint/internal"
	"chargepoint/ocpp/firmware"
	"fmt"
	"time"
)

// FirmwareState is the station-global update state machine. Progress pointers
// are set only while the matching phase is running.
type FirmwareState struct {
	Status           firmware.Status
	DownloadProgress *int
	InstallProgress  *int
	Location         string
}

type FirmwareSnapshot struct {
	Status           string `json:"status"`
	DownloadProgress *int   `json:"download_progress,omitempty"`
	InstallProgress  *int   `json:"install_progress,omitempty"`
	Location         string `json:"location,omitempty"`
}

func firmwareInFlight(status firmware.Status) bool {
	switch status {
	case firmware.StatusDownloading, firmware.StatusDownloaded, firmware.StatusInstalling:
		return true
	default:
		return false
	}
}

// StartFirmwareUpdate begins a download/install cycle. While an update is in
// flight further calls are ignored; a failed or completed update may be
// restarted.
func (cp *ChargePoint) StartFirmwareUpdate(location string) {
	cp.mux.Lock()
	if location == "" {
		cp.mux.Unlock()
		cp.logger.Debug("firmware update rejected: empty location")
		return
	}
	if firmwareInFlight(cp.firmware.Status) {
		cp.mux.Unlock()
		cp.logger.Debug(fmt.Sprintf("firmware update already in progress: %s", cp.firmware.Status))
		return
	}
	if cp.firmwareTask != nil {
		cp.firmwareTask.cancel()
	}
	progress := 0
	cp.firmware = FirmwareState{
		Status:           firmware.StatusDownloading,
		DownloadProgress: &progress,
		Location:         location,
	}
	cp.emitFirmwareStatus(firmware.StatusDownloading)
	cp.firmwareTask = startTask(cp.conf.Intervals.FirmwareTick, cp.firmwareTick)
	cp.mux.Unlock()
}

// firmwareTick advances the state machine one step. Progress only ever grows
// within a phase; reaching 100 flips the phase.
func (cp *ChargePoint) firmwareTick() {
	cp.mux.Lock()
	defer cp.mux.Unlock()
	switch cp.firmware.Status {
	case firmware.StatusDownloading:
		progress := *cp.firmware.DownloadProgress + cp.progressStep()
		if progress >= 100 {
			cp.firmware.Status = firmware.StatusDownloaded
			cp.firmware.DownloadProgress = nil
			cp.emitFirmwareStatus(firmware.StatusDownloaded)
		} else {
			cp.firmware.DownloadProgress = &progress
		}
	case firmware.StatusDownloaded:
		progress := 0
		cp.firmware.Status = firmware.StatusInstalling
		cp.firmware.InstallProgress = &progress
		cp.emitFirmwareStatus(firmware.StatusInstalling)
	case firmware.StatusInstalling:
		progress := *cp.firmware.InstallProgress + cp.progressStep()
		if progress >= 100 {
			cp.firmware.Status = firmware.StatusInstalled
			cp.firmware.InstallProgress = nil
			cp.emitFirmwareStatus(firmware.StatusInstalled)
			cp.stopFirmwareTask()
		} else {
			cp.firmware.InstallProgress = &progress
		}
	default:
		cp.stopFirmwareTask()
	}
}

func (cp *ChargePoint) progressStep() int {
	step := cp.source.ProgressStep()
	if step < 1 {
		step = 1
	}
	return step
}

// stopFirmwareTask is safe to call from within the tick itself: cancel only
// closes the stop channel.
func (cp *ChargePoint) stopFirmwareTask() {
	if cp.firmwareTask != nil {
		cp.firmwareTask.cancel()
		cp.firmwareTask = nil
	}
}

// failFirmware marks an in-flight update failed when its transfer source is
// gone. Caller holds the state lock.
func (cp *ChargePoint) failFirmware() {
	switch cp.firmware.Status {
	case firmware.StatusDownloading, firmware.StatusDownloaded:
		cp.firmware.Status = firmware.StatusDownloadFailed
		cp.firmware.DownloadProgress = nil
		cp.emitFirmwareStatus(firmware.StatusDownloadFailed)
	case firmware.StatusInstalling:
		cp.firmware.Status = firmware.StatusInstallationFailed
		cp.firmware.InstallProgress = nil
		cp.emitFirmwareStatus(firmware.StatusInstallationFailed)
	default:
		return
	}
	cp.stopFirmwareTask()
}

// emitFirmwareStatus reports a state transition to the central system and to
// subscribers. Caller holds the state lock.
func (cp *ChargePoint) emitFirmwareStatus(status firmware.Status) {
	request := firmware.NewStatusNotificationRequest(status)
	if _, err := cp.correlator.Emit(request, nil, nil); err != nil {
		cp.logger.Warn(fmt.Sprintf("firmware status %s: %s", status, err))
	}
	if cp.eventHandler != nil {
		cp.eventHandler.OnFirmwareStatus(&internal.EventMessage{
			Type:      "FirmwareStatus",
			StationId: cp.conf.Station.Id,
			Time:      time.Now(),
			Status:    string(status),
			Info:      cp.firmware.Location,
		})
	}
	cp.logger.FeatureEvent(firmware.StatusNotificationFeatureName, "", fmt.Sprintf("firmware %s", status))
}

func (cp *ChargePoint) firmwareSnapshot() FirmwareSnapshot {
	snapshot := FirmwareSnapshot{
		Status:   string(cp.firmware.Status),
		Location: cp.firmware.Location,
	}
	if cp.firmware.DownloadProgress != nil {
		progress := *cp.firmware.DownloadProgress
		snapshot.DownloadProgress = &progress
	}
	if cp.firmware.InstallProgress != nil {
		progress := *cp.firmware.InstallProgress
		snapshot.InstallProgress = &progress
	}
	return snapshot
}
