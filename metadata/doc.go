// Package metadata reads the dependency declarations of ports.
//
// A port declares build-time, run-time and test-time dependencies as tokens
// of the form "target[operator version]", for example "cmake" or
// "libfoo>=1.2". Sources return the raw tokens; ParseToken splits them.
//
// Descriptors live at <ports>/<id>/port.yaml or <ports>/<id>/port.hcl:
//
//	# port.yaml
//	version: 2.1.0
//	depends:
//	  build: [cmake, pkgconf]
//	  run: ["libfoo>=1.2"]
//
//	# port.hcl
//	version = "2.1.0"
//	depends {
//	  build = ["cmake", "pkgconf"]
//	  run   = ["libfoo>=1.2"]
//	}
//
// A port with no descriptor is a leaf.
package metadata
