package feed

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/langchou/stationgazer/internal/models"
)

// 充电站记录字段名（上游 OICP 命名）
const (
	fieldChargingStationID    = "ChargingStationId"
	fieldEvseID               = "EvseID"
	fieldClearinghouseID      = "ClearinghouseID"
	fieldHubOperatorID        = "HubOperatorID"
	fieldChargingPoolID       = "ChargingPoolID"
	fieldAddress              = "Address"
	fieldGeoCoordinates       = "GeoCoordinates"
	fieldGeoEntrance          = "GeoChargingPointEntrance"
	fieldChargingFacilities   = "ChargingFacilities"
	fieldAuthenticationModes  = "AuthenticationModes"
	fieldPlugs                = "Plugs"
	fieldPaymentOptions       = "PaymentOptions"
	fieldIsOpen24Hours        = "IsOpen24Hours"
	fieldRenewableEnergy      = "RenewableEnergy"
	fieldDynamicInfoAvailable = "DynamicInfoAvailable"
	fieldLastUpdate           = "lastUpdate"
	fieldMaxCapacity          = "MaxCapacity"
	fieldDynamicPowerLevel    = "DynamicPowerLevel"
	fieldEnergySource         = "EnergySource"
	fieldEnvironmentalImpact  = "EnvironmentalImpact"
	fieldLocationImage        = "ChargingStationImage"
	fieldSuboperatorName      = "SuboperatorName"
	fieldHardwareManufacturer = "HardwareManufacturer"
	fieldAdditionalInfo       = "AdditionalInfo"
	fieldLocationReference    = "ChargingStationLocationReference"
	fieldDeltaType            = "deltaType"
	fieldValueAddedServices   = "ValueAddedServices"
	fieldNames                = "ChargingStationNames"
	fieldOpeningTimes         = "OpeningTimes"
)

// object 已拆分的 JSON 对象，path 用于错误信息中的字段路径
type object struct {
	path   string
	fields map[string]json.RawMessage
}

func newObject(path string, raw json.RawMessage) (object, error) {
	raw = bytes.TrimSpace(raw)
	var fields map[string]json.RawMessage
	if len(raw) == 0 || raw[0] != '{' {
		return object{}, &FieldCoercionError{Field: pathOr(path, "record"), RawValue: string(raw), TargetKind: KindObject}
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return object{}, &FieldCoercionError{Field: pathOr(path, "record"), RawValue: string(raw), TargetKind: KindObject, Err: err}
	}
	return object{path: path, fields: fields}, nil
}

func (o object) name(key string) string {
	if o.path == "" {
		return key
	}
	return o.path + "." + key
}

// lookup 缺省和 null 都视为不存在
func (o object) lookup(keys ...string) (json.RawMessage, bool) {
	for _, key := range keys {
		if raw, ok := o.fields[key]; ok && !isNull(raw) {
			return raw, true
		}
	}
	return nil, false
}

func (o object) required(key string) (json.RawMessage, error) {
	raw, ok := o.lookup(key)
	if !ok {
		return nil, &MissingRequiredFieldError{Field: o.name(key)}
	}
	return raw, nil
}

func (o object) requiredString(key string) (string, error) {
	raw, err := o.required(key)
	if err != nil {
		return "", err
	}
	return String(o.name(key), raw)
}

func (o object) optionalString(keys ...string) (*string, error) {
	raw, ok := o.lookup(keys...)
	if !ok {
		return nil, nil
	}
	s, err := String(o.name(keys[0]), raw)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (o object) child(key string) (object, error) {
	raw, err := o.required(key)
	if err != nil {
		return object{}, err
	}
	return newObject(o.name(key), raw)
}

// optional 仅做存在性检查，按目标类型严格解码
func optional[T any](o object, key string, kind Kind) (*T, error) {
	raw, ok := o.lookup(key)
	if !ok {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &FieldCoercionError{Field: o.name(key), RawValue: string(raw), TargetKind: kind, Err: err}
	}
	return &v, nil
}

// DecodeStation 将单个原始 JSON 对象解码为 ChargingStation。
// 失败时返回 *RecordError，其中 StationID 为已解出的 ChargingStationId，否则为 "unknown"。
func DecodeStation(raw json.RawMessage) (models.ChargingStation, error) {
	d := &stationDecoder{}
	if err := d.decode(raw); err != nil {
		id := d.station.ChargingStationID
		if id == "" {
			id = unknownStationID
		}
		return models.ChargingStation{}, &RecordError{Wrapper: -1, Index: -1, StationID: id, Err: err}
	}
	return d.station, nil
}

type stationDecoder struct {
	station models.ChargingStation
}

func (d *stationDecoder) decode(raw json.RawMessage) error {
	o, err := newObject("", raw)
	if err != nil {
		return err
	}
	s := &d.station

	// 先解标识，后续错误信息可带上它
	if s.ChargingStationID, err = o.requiredString(fieldChargingStationID); err != nil {
		return err
	}
	if s.EvseID, err = o.requiredString(fieldEvseID); err != nil {
		return err
	}
	if s.ClearinghouseID, err = o.optionalString(fieldClearinghouseID); err != nil {
		return err
	}
	if s.HubOperatorID, err = o.optionalString(fieldHubOperatorID); err != nil {
		return err
	}
	if s.ChargingPoolID, err = o.optionalString(fieldChargingPoolID); err != nil {
		return err
	}

	if s.Address, err = decodeAddress(o); err != nil {
		return err
	}
	if s.GeoCoordinates, err = decodeGeo(o, fieldGeoCoordinates); err != nil {
		return err
	}
	if s.GeoChargingPointEntrance, err = decodeGeo(o, fieldGeoEntrance); err != nil {
		return err
	}

	if s.ChargingFacilities, err = decodeFacilities(o); err != nil {
		return err
	}
	if s.AuthenticationModes, err = decodeAuthenticationModes(o); err != nil {
		return err
	}
	plugs, err := o.required(fieldPlugs)
	if err != nil {
		return err
	}
	if s.Plugs, err = stringList(o.name(fieldPlugs), plugs); err != nil {
		return err
	}
	if s.PaymentOptions, err = decodePaymentOptions(o); err != nil {
		return err
	}

	if err := d.decodeFlags(o); err != nil {
		return err
	}
	if err := d.decodeOptional(o); err != nil {
		return err
	}

	names, _ := o.lookup(fieldNames)
	if s.ChargingStationNames, err = OneOrMany(o.name(fieldNames), names, decodeLocalizedText); err != nil {
		return err
	}
	if s.OpeningTimes, err = decodeOpeningTimes(o); err != nil {
		return err
	}
	return nil
}

// decodeFlags 布尔和枚举类必填字段，以及 lastUpdate
func (d *stationDecoder) decodeFlags(o object) error {
	s := &d.station

	raw, err := o.required(fieldIsOpen24Hours)
	if err != nil {
		return err
	}
	if s.IsOpen24Hours, err = BoolOrString(o.name(fieldIsOpen24Hours), raw); err != nil {
		return err
	}

	if raw, err = o.required(fieldRenewableEnergy); err != nil {
		return err
	}
	if s.RenewableEnergy, err = StrictBool(o.name(fieldRenewableEnergy), raw); err != nil {
		return err
	}

	dyn, err := o.requiredString(fieldDynamicInfoAvailable)
	if err != nil {
		return err
	}
	info, ok := models.ParseDynamicInfoAvailable(dyn)
	if !ok {
		return &UnknownEnumValueError{Field: o.name(fieldDynamicInfoAvailable), Value: dyn}
	}
	s.DynamicInfoAvailable = info

	if raw, ok := o.lookup(fieldLastUpdate); ok {
		t, err := Timestamp(o.name(fieldLastUpdate), raw)
		if err != nil {
			return err
		}
		s.LastUpdate = &t
	}
	return nil
}

// decodeOptional 只做存在性检查的可选字段
func (d *stationDecoder) decodeOptional(o object) error {
	s := &d.station
	var err error

	if s.MaxCapacity, err = optional[int](o, fieldMaxCapacity, KindNumber); err != nil {
		return err
	}
	if s.DynamicPowerLevel, err = optional[bool](o, fieldDynamicPowerLevel, KindBool); err != nil {
		return err
	}
	sources, err := optional[[]models.EnergySource](o, fieldEnergySource, KindList)
	if err != nil {
		return err
	}
	if sources != nil {
		s.EnergySource = *sources
	}
	if s.EnvironmentalImpact, err = optional[models.EnvironmentalImpact](o, fieldEnvironmentalImpact, KindObject); err != nil {
		return err
	}
	if s.LocationImage, err = o.optionalString(fieldLocationImage, "LocationImage"); err != nil {
		return err
	}
	if s.SuboperatorName, err = o.optionalString(fieldSuboperatorName); err != nil {
		return err
	}
	if s.HardwareManufacturer, err = o.optionalString(fieldHardwareManufacturer); err != nil {
		return err
	}
	if raw, ok := o.lookup(fieldAdditionalInfo); ok {
		if s.AdditionalInfo, err = OneOrMany(o.name(fieldAdditionalInfo), raw, decodeLocalizedText); err != nil {
			return err
		}
	}
	if raw, ok := o.lookup(fieldLocationReference); ok {
		if s.ChargingStationLocationReference, err = OneOrMany(o.name(fieldLocationReference), raw, decodeLocalizedText); err != nil {
			return err
		}
	}
	if s.DeltaType, err = o.optionalString(fieldDeltaType); err != nil {
		return err
	}
	services, err := optional[[]string](o, fieldValueAddedServices, KindList)
	if err != nil {
		return err
	}
	if services != nil {
		s.ValueAddedServices = *services
	}
	return nil
}

func decodeAddress(parent object) (models.Address, error) {
	var addr models.Address
	o, err := parent.child(fieldAddress)
	if err != nil {
		return addr, err
	}

	if addr.Street, err = o.requiredString("Street"); err != nil {
		return addr, err
	}
	if addr.City, err = o.requiredString("City"); err != nil {
		return addr, err
	}
	if addr.Country, err = o.requiredString("Country"); err != nil {
		return addr, err
	}

	optionals := []struct {
		key string
		dst **string
	}{
		{"HouseNum", &addr.HouseNum},
		{"PostalCode", &addr.PostalCode},
		{"Region", &addr.Region},
		{"TimeZone", &addr.TimeZone},
		{"Floor", &addr.Floor},
		{"ParkingSpot", &addr.ParkingSpot},
	}
	for _, f := range optionals {
		if *f.dst, err = o.optionalString(f.key); err != nil {
			return addr, err
		}
	}

	if raw, ok := o.lookup("ParkingFacility"); ok {
		b, err := BoolOrString(o.name("ParkingFacility"), raw)
		if err != nil {
			return addr, err
		}
		addr.ParkingFacility = &b
	}
	return addr, nil
}

func decodeGeo(parent object, key string) (models.GeoCoordinates, error) {
	o, err := parent.child(key)
	if err != nil {
		return models.GeoCoordinates{}, err
	}
	google, err := o.requiredString("Google")
	if err != nil {
		return models.GeoCoordinates{}, err
	}
	return models.GeoCoordinates{Google: google}, nil
}

func decodeFacilities(parent object) (models.Facilities, error) {
	raw, ok := parent.lookup(fieldChargingFacilities)
	if !ok {
		return models.Facilities{}, nil
	}
	field := parent.name(fieldChargingFacilities)
	facilities, err := decodeArray(field, raw, decodeFacility)
	if err != nil {
		return nil, wrapListError(field, raw, err)
	}
	return facilities, nil
}

func decodeFacility(path string, raw json.RawMessage) (models.Facility, error) {
	var fac models.Facility
	o, err := newObject(path, raw)
	if err != nil {
		return fac, err
	}

	numbers := []struct {
		keys []string
		dst  **float64
	}{
		{[]string{"power", "Power"}, &fac.Power},
		{[]string{"Amperage", "amperage"}, &fac.Amperage},
		{[]string{"Voltage", "voltage"}, &fac.Voltage},
	}
	for _, n := range numbers {
		v, ok := o.lookup(n.keys...)
		if !ok {
			continue
		}
		f, err := FloatOrString(o.name(n.keys[0]), v)
		if err != nil {
			return fac, err
		}
		*n.dst = &f
	}

	if fac.PowerType, err = o.optionalString("powertype", "PowerType"); err != nil {
		return fac, err
	}
	return fac, nil
}

// decodeAuthenticationModes 严格枚举：任一值无法匹配则整个字段失败
func decodeAuthenticationModes(o object) ([]models.AuthenticationMode, error) {
	raw, err := o.required(fieldAuthenticationModes)
	if err != nil {
		return nil, err
	}
	field := o.name(fieldAuthenticationModes)
	values, err := stringList(field, raw)
	if err != nil {
		return nil, err
	}
	modes := make([]models.AuthenticationMode, 0, len(values))
	for _, v := range values {
		m, ok := models.ParseAuthenticationMode(v)
		if !ok {
			return nil, &UnknownEnumValueError{Field: field, Value: v}
		}
		modes = append(modes, m)
	}
	return modes, nil
}

// decodePaymentOptions 可选；规则同 AuthenticationModes
func decodePaymentOptions(o object) ([]models.PaymentOption, error) {
	raw, ok := o.lookup(fieldPaymentOptions)
	if !ok {
		return nil, nil
	}
	field := o.name(fieldPaymentOptions)
	values, err := stringList(field, raw)
	if err != nil {
		return nil, err
	}
	options := make([]models.PaymentOption, 0, len(values))
	for _, v := range values {
		p, ok := models.ParsePaymentOption(v)
		if !ok {
			return nil, &UnknownEnumValueError{Field: field, Value: v}
		}
		options = append(options, p)
	}
	return options, nil
}

func decodeOpeningTimes(parent object) (models.OpeningTimes, error) {
	raw, ok := parent.lookup(fieldOpeningTimes)
	if !ok {
		return nil, nil
	}
	field := parent.name(fieldOpeningTimes)
	times, err := decodeArray(field, raw, decodeOpeningTime)
	if err != nil {
		return nil, wrapListError(field, raw, err)
	}
	return times, nil
}

func decodeOpeningTime(path string, raw json.RawMessage) (models.OpeningTime, error) {
	var ot models.OpeningTime
	o, err := newObject(path, raw)
	if err != nil {
		return ot, err
	}
	on, err := o.requiredString("on")
	if err != nil {
		return ot, err
	}
	ot.On = models.ParseDay(on)

	periods, _ := o.lookup("Period")
	if ot.Periods, err = OneOrMany(o.name("Period"), periods, decodePeriod); err != nil {
		return ot, err
	}
	return ot, nil
}

// decodeLocalizedText lang 和 value 都必须存在
func decodeLocalizedText(path string, raw json.RawMessage) (models.LocalizedText, error) {
	var text models.LocalizedText
	o, err := newObject(path, raw)
	if err != nil {
		return text, err
	}
	if text.Lang, err = o.requiredString("lang"); err != nil {
		return text, err
	}
	if text.Value, err = o.requiredString("value"); err != nil {
		return text, err
	}
	return text, nil
}

func decodePeriod(path string, raw json.RawMessage) (models.Period, error) {
	var p models.Period
	o, err := newObject(path, raw)
	if err != nil {
		return p, err
	}
	if p.Begin, err = o.requiredString("begin"); err != nil {
		return p, err
	}
	if p.End, err = o.requiredString("end"); err != nil {
		return p, err
	}
	return p, nil
}

func stringList(field string, raw json.RawMessage) ([]string, error) {
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, &FieldCoercionError{Field: field, RawValue: string(raw), TargetKind: KindList, Err: err}
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}

// wrapListError 元素本身的类型化错误原样返回，其余归为 FieldShapeError
func wrapListError(field string, raw json.RawMessage, err error) error {
	var (
		coercion *FieldCoercionError
		missing  *MissingRequiredFieldError
		enum     *UnknownEnumValueError
		shape    *FieldShapeError
	)
	if errors.As(err, &coercion) || errors.As(err, &missing) || errors.As(err, &enum) || errors.As(err, &shape) {
		return err
	}
	return &FieldShapeError{Field: field, RawValue: string(raw), Err: err}
}

func pathOr(path, fallback string) string {
	if path == "" {
		return fallback
	}
	return path
}
