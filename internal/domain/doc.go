// Package domain models the records that flow through the Cumulus
// geoprocessing worker.
//
// # Inputs
//
// An upstream acquisition service drops raw agency files (GRIB, NetCDF,
// zipped or tarred rasters) into a bucket and publishes a geoprocess message
// naming the bucket, the object key, and the acquirable slug that identifies
// the data source. See [GeoprocessMessage].
//
// # Products
//
// Every conversion yields zero or more [Product] records, one per single-band
// Cloud-Optimized GeoTIFF written to the work directory:
//
//	{"filetype": "nbm-co-qpf",
//	 "file": "/tmp/geoproc/blend.20220818.t00z.tif",
//	 "datetime": "2022-08-18T01:00:00+00:00",
//	 "version": "2022-08-18T00:00:00+00:00"}
//
// Datetime is the valid time of the grid. Version is the forecast reference
// time, or JSON null for observed (unversioned) data. Timestamps are written
// with an explicit numeric offset, see [FormatTime].
//
// # Results
//
// After publishing, the worker emits one [Result] per message to the results
// topic. The result status reports whether products were published, none
// were produced, the catalog notification failed, or the message failed
// outright.
package domain
