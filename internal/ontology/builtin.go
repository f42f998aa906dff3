package ontology

import "github.com/mosaicolabs/mosaico/pkg/types"

// Built-in sensor ontologies. Registered once at process start; adapters
// for foreign recording formats map their messages onto these tags.
func init() {
	builtins := []*Descriptor{
		{
			Tag: "gps",
			Schema: mustCompose("gps",
				HeaderGroup(),
				Group("fix",
					types.ColumnDef{Name: "latitude", Type: types.ColumnFloat},
					types.ColumnDef{Name: "longitude", Type: types.ColumnFloat},
					types.ColumnDef{Name: "altitude", Type: types.ColumnFloat, Nullable: true},
					types.ColumnDef{Name: "status", Type: types.ColumnInteger, Nullable: true},
				),
				CovarianceGroup("position", 3),
			),
			Format: types.FormatDefault,
		},
		{
			Tag: "imu",
			Schema: mustCompose("imu",
				HeaderGroup(),
				Vector3Group("acceleration"),
				Vector3Group("angular_velocity"),
				QuaternionGroup("orientation"),
				CovarianceGroup("orientation", 3),
			),
			Format: types.FormatDefault,
		},
		{
			Tag: "pose",
			Schema: mustCompose("pose",
				HeaderGroup(),
				Vector3Group("position"),
				QuaternionGroup("orientation"),
				CovarianceGroup("pose", 6),
			),
			Format: types.FormatDefault,
		},
		{
			Tag: "tf",
			Schema: mustCompose("tf",
				HeaderGroup(),
				Group("transform",
					types.ColumnDef{Name: "child_frame_id", Type: types.ColumnText},
				),
				Vector3Group("translation"),
				QuaternionGroup("rotation"),
			),
			Format: types.FormatDefault,
		},
		{
			Tag: "diagnostic",
			Schema: mustCompose("diagnostic",
				HeaderGroup(),
				Group("status",
					types.ColumnDef{Name: "name", Type: types.ColumnText},
					types.ColumnDef{Name: "level", Type: types.ColumnInteger},
					types.ColumnDef{Name: "message", Type: types.ColumnText, Nullable: true},
					types.ColumnDef{Name: "hardware_id", Type: types.ColumnText, Nullable: true},
				),
			),
			Format: types.FormatDefault,
		},
		{
			Tag: "pointcloud",
			Schema: mustCompose("pointcloud",
				HeaderGroup(),
				Group("cloud",
					types.ColumnDef{Name: "point_count", Type: types.ColumnInteger},
					types.ColumnDef{Name: "point_step", Type: types.ColumnInteger},
					types.ColumnDef{Name: "is_dense", Type: types.ColumnBoolean, Nullable: true},
					types.ColumnDef{Name: "data", Type: types.ColumnBytes},
				),
			),
			Format: types.FormatRagged,
		},
		{
			Tag: "image",
			Schema: mustCompose("image",
				HeaderGroup(),
				Group("frame",
					types.ColumnDef{Name: "width", Type: types.ColumnInteger},
					types.ColumnDef{Name: "height", Type: types.ColumnInteger},
					types.ColumnDef{Name: "encoding", Type: types.ColumnText},
					types.ColumnDef{Name: "data", Type: types.ColumnBytes},
				),
			),
			Format: types.FormatImage,
		},
	}

	for _, d := range builtins {
		if err := defaultRegistry.Register(d); err != nil {
			panic(err)
		}
	}
}
