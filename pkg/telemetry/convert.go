package telemetry

// Convert applies the barometer's first-order compensation algorithm to a
// raw sample, yielding temperature in degrees Celsius and pressure in
// pascals. The constants and scaling follow the MS56xx datasheet:
//
//	dT   = D2 - T_REF*2^8
//	TEMP = 2000 + dT*TEMPSENS/2^23          (centi-degC)
//	OFF  = OFF_T1*2^16 + TCO*dT/2^7
//	SENS = SENS_T1*2^15 + TCS*dT/2^8
//	P    = (D1*SENS/2^21 - OFF)/2^15        (Pa)
func (c BarometerCalibration) Convert(d BarometerData) (tempC float64, pressurePa float64) {
	dT := int64(d.Temperature) - int64(c.ReferenceTemperature)<<8
	temp := 2000 + dT*int64(c.TemperatureCoefficientT)>>23

	off := int64(c.PressureOffset)<<16 + int64(c.TemperatureCoefficientPO)*dT>>7
	sens := int64(c.PressureSensitivity)<<15 + int64(c.TemperatureCoefficientPS)*dT>>8
	p := (int64(d.Pressure)*sens>>21 - off) >> 15

	return float64(temp) / 100, float64(p)
}
