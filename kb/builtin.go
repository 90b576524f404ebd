package kb

import "github.com/signalsfoundry/gnss-adapter/model"

// Builtin returns a small synthetic catalog: nine GPS-like vehicles spread
// over six planes and three Galileo-like vehicles. Elements share one epoch
// so the simulated sky is reproducible.
func Builtin() *Catalog {
	c := NewCatalog()
	for _, v := range builtinVehicles {
		_ = c.Add(v)
	}
	return c
}

var builtinVehicles = []SpaceVehicle{
	{model.ConstellationGPS, 1, "GPS-SIM 01", "1 40001U 21001A   21275.50000000 -.00000020  00000-0  00000-0 0  9994", "2 40001  55.0000   0.0000 0005000  30.0000   0.0000  2.00560000123453"},
	{model.ConstellationGPS, 2, "GPS-SIM 02", "1 40002U 21002A   21275.50000000 -.00000020  00000-0  00000-0 0  9996", "2 40002  55.0000   0.0000 0005000  30.0000  90.0000  2.00560000123453"},
	{model.ConstellationGPS, 3, "GPS-SIM 03", "1 40003U 21003A   21275.50000000 -.00000020  00000-0  00000-0 0  9998", "2 40003  55.0000  60.0000 0005000  30.0000  45.0000  2.00560000123450"},
	{model.ConstellationGPS, 4, "GPS-SIM 04", "1 40004U 21004A   21275.50000000 -.00000020  00000-0  00000-0 0  9990", "2 40004  55.0000  60.0000 0005000  30.0000 135.0000  2.00560000123451"},
	{model.ConstellationGPS, 5, "GPS-SIM 05", "1 40005U 21005A   21275.50000000 -.00000020  00000-0  00000-0 0  9992", "2 40005  55.0000 120.0000 0005000  30.0000  10.0000  2.00560000123451"},
	{model.ConstellationGPS, 6, "GPS-SIM 06", "1 40006U 21006A   21275.50000000 -.00000020  00000-0  00000-0 0  9994", "2 40006  55.0000 120.0000 0005000  30.0000 200.0000  2.00560000123453"},
	{model.ConstellationGPS, 7, "GPS-SIM 07", "1 40007U 21007A   21275.50000000 -.00000020  00000-0  00000-0 0  9996", "2 40007  55.0000 180.0000 0005000  30.0000 300.0000  2.00560000123451"},
	{model.ConstellationGPS, 8, "GPS-SIM 08", "1 40008U 21008A   21275.50000000 -.00000020  00000-0  00000-0 0  9998", "2 40008  55.0000 240.0000 0005000  30.0000 160.0000  2.00560000123453"},
	{model.ConstellationGPS, 9, "GPS-SIM 09", "1 40009U 21009A   21275.50000000 -.00000020  00000-0  00000-0 0  9990", "2 40009  55.0000 300.0000 0005000  30.0000 250.0000  2.00560000123451"},
	{model.ConstellationGalileo, 1, "GAL-SIM 01", "1 41001U 21051A   21275.50000000 -.00000020  00000-0  00000-0 0  9990", "2 41001  56.0000  20.0000 0003000  10.0000   0.0000  1.70470000123459"},
	{model.ConstellationGalileo, 2, "GAL-SIM 02", "1 41002U 21052A   21275.50000000 -.00000020  00000-0  00000-0 0  9992", "2 41002  56.0000 140.0000 0003000  10.0000 120.0000  1.70470000123456"},
	{model.ConstellationGalileo, 3, "GAL-SIM 03", "1 41003U 21053A   21275.50000000 -.00000020  00000-0  00000-0 0  9994", "2 41003  56.0000 260.0000 0003000  10.0000 240.0000  1.70470000123453"},
}
