// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package tag

import "strconv"

// Quality is the integer quality code stored with every sample.
// Values follow the OPC DA numbering used by the host platform.
type Quality int32

const (
	QualityBad           Quality = 0
	QualityConfigError   Quality = 4
	QualityNotConnected  Quality = 8
	QualityDeviceFailure Quality = 12
	QualitySensorFailure Quality = 16
	QualityLastKnown     Quality = 20
	QualityCommFailure   Quality = 24
	QualityOutOfService  Quality = 28
	QualityUncertain     Quality = 64
	QualityGood          Quality = 192
)

// IsGood reports whether the code is the GOOD sentinel.
func (q Quality) IsGood() bool {
	return q == QualityGood
}

func (q Quality) String() string {
	switch q {
	case QualityBad:
		return "Bad"
	case QualityConfigError:
		return "Config_Error"
	case QualityNotConnected:
		return "Not_Connected"
	case QualityDeviceFailure:
		return "Device_Failure"
	case QualitySensorFailure:
		return "Sensor_Failure"
	case QualityLastKnown:
		return "Last_Known"
	case QualityCommFailure:
		return "Comm_Failure"
	case QualityOutOfService:
		return "Out_Of_Service"
	case QualityUncertain:
		return "Uncertain"
	case QualityGood:
		return "Good"
	default:
		return "Quality(" + strconv.Itoa(int(q)) + ")"
	}
}
