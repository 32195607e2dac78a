package assets

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	imagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_images_total",
		Help: "Images processed by outcome (downloaded, reused, failed)",
	}, []string{"outcome"})

	imageBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_image_bytes_total",
		Help: "Bytes of image data written to disk",
	})

	imageTypesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_image_types_total",
		Help: "Downloaded images by sniffed content type",
	}, []string{"mime"})

	stalePartsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_stale_parts_removed_total",
		Help: "Temporary files of interrupted writes removed on resume",
	})
)
